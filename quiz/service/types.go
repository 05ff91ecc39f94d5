package service

import (
	"context"
	"sync"
	"time"

	"github.com/studyduel/studyduel/quiz/engine"
)

// ExamService defines all session-related operations exposed to transports.
type ExamService interface {
	// Session lifecycle
	CreateSession(ctx context.Context) (*CreateResult, error)
	JoinSession(ctx context.Context, sessionID string, role engine.Role) (string, error)
	Authenticate(ctx context.Context, sessionID, tok string) (engine.Role, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*SessionInfo, error)

	// Study material and question generation
	AddPDFs(ctx context.Context, sessionID string, uploads []PDFUpload) (*engine.Snapshot, error)
	GenerateQuestions(ctx context.Context, sessionID string, pdfTexts map[string]string) (*engine.Snapshot, error)

	// Question progression
	Reveal(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	Grade(ctx context.Context, sessionID string, index int, status engine.GradeStatus) (*engine.Snapshot, error)
	Next(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	Jump(ctx context.Context, sessionID string, index int) (*engine.Snapshot, error)

	// Projections
	LearnerCurrent(ctx context.Context, sessionID string) (*engine.LearnerView, error)
	ExaminerSnapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error)
}

// SessionManager defines session storage operations. Update applies an
// atomic read-modify-write under the target session's own lock; View runs a
// read under the same lock without bumping access time or persisting.
type SessionManager interface {
	Create() (*Session, error)
	Get(id string) (*Session, error)
	Update(id string, fn func(*Session) error) error
	View(id string, fn func(*Session) error) error
	List() []*Session
	Delete(id string) error
	Count() int
	CleanupExpiredSessions(maxAge time.Duration) int
}

// Session represents one examiner-learner pairing with its own engine
// instance, per-role tokens and access metadata.
type Session struct {
	ID             string
	Engine         *engine.Engine
	Tokens         map[engine.Role]string
	CreatedAt      time.Time
	LastAccessedAt time.Time

	mu sync.Mutex
}

// Lock acquires this session's mutex. All reads and writes of Engine and
// Tokens happen under it; the manager handles locking for callers that go
// through Update/View.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases this session's mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// CreateResult is returned from CreateSession.
type CreateResult struct {
	SessionID     string `json:"session_id"`
	ExaminerToken string `json:"examiner_token"`
}

// SessionInfo is a lightweight listing entry for the ops surface.
type SessionInfo struct {
	ID             string        `json:"session_id"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	QuestionCount  int           `json:"question_count"`
	Roles          []engine.Role `json:"roles"`
}

// PDFUpload carries the metadata of one uploaded file.
type PDFUpload struct {
	Filename string
	Size     int64
}
