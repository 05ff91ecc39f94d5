package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/generator"
)

// fakeManager is a minimal in-memory SessionManager for service tests. The
// real manager lives in the session package, which depends on this one.
type fakeManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	next     int
}

var errFakeNotFound = errors.New("session not found")

func newFakeManager() *fakeManager {
	return &fakeManager{sessions: make(map[string]*Session)}
}

func (m *fakeManager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	sess := &Session{
		ID:             fmt.Sprintf("TEST%04d", m.next),
		Engine:         engine.NewEngine(),
		Tokens:         make(map[engine.Role]string),
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *fakeManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return sess, nil
}

func (m *fakeManager) Update(id string, fn func(*Session) error) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.Lock()
	defer sess.Unlock()
	if err := fn(sess); err != nil {
		return err
	}
	sess.LastAccessedAt = time.Now()
	return nil
}

func (m *fakeManager) View(id string, fn func(*Session) error) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.Lock()
	defer sess.Unlock()
	return fn(sess)
}

func (m *fakeManager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

func (m *fakeManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errFakeNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *fakeManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *fakeManager) CleanupExpiredSessions(maxAge time.Duration) int { return 0 }

func newTestService() (ExamService, *fakeManager) {
	manager := newFakeManager()
	svc := NewExamService(manager, generator.NewHeuristic(), 10, zerolog.Nop())
	return svc, manager
}

func TestCreateSession(t *testing.T) {
	svc, manager := newTestService()

	result, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if result.SessionID == "" {
		t.Error("expected non-empty session id")
	}
	if result.ExaminerToken == "" {
		t.Error("expected examiner token to be issued")
	}

	sess, err := manager.Get(result.SessionID)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.Tokens[engine.RoleExaminer] != result.ExaminerToken {
		t.Error("examiner token not bound to the session")
	}
}

func TestJoinSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	t.Run("learner joins an open session", func(t *testing.T) {
		tok, err := svc.JoinSession(ctx, created.SessionID, engine.RoleLearner)
		if err != nil {
			t.Fatalf("JoinSession failed: %v", err)
		}
		if tok == "" || tok == created.ExaminerToken {
			t.Errorf("expected a distinct learner token, got %q", tok)
		}
	})

	t.Run("occupied role is rejected", func(t *testing.T) {
		if _, err := svc.JoinSession(ctx, created.SessionID, engine.RoleLearner); !errors.Is(err, ErrRoleOccupied) {
			t.Errorf("expected ErrRoleOccupied, got %v", err)
		}
		if _, err := svc.JoinSession(ctx, created.SessionID, engine.RoleExaminer); !errors.Is(err, ErrRoleOccupied) {
			t.Errorf("expected ErrRoleOccupied for examiner, got %v", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		if _, err := svc.JoinSession(ctx, created.SessionID, engine.Role("observer")); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := svc.JoinSession(ctx, "NOPE0000", engine.RoleLearner); !errors.Is(err, errFakeNotFound) {
			t.Errorf("expected store error to propagate, got %v", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	learnerToken, err := svc.JoinSession(ctx, created.SessionID, engine.RoleLearner)
	if err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}

	t.Run("examiner token resolves", func(t *testing.T) {
		role, err := svc.Authenticate(ctx, created.SessionID, created.ExaminerToken)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if role != engine.RoleExaminer {
			t.Errorf("expected examiner, got %s", role)
		}
	})

	t.Run("learner token resolves", func(t *testing.T) {
		role, err := svc.Authenticate(ctx, created.SessionID, learnerToken)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if role != engine.RoleLearner {
			t.Errorf("expected learner, got %s", role)
		}
	})

	t.Run("bad token", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, created.SessionID, "not-a-token"); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, created.SessionID, ""); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestGenerateQuestions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	t.Run("empty texts are rejected", func(t *testing.T) {
		if _, err := svc.GenerateQuestions(ctx, created.SessionID, nil); !errors.Is(err, ErrNoPDFTexts) {
			t.Errorf("expected ErrNoPDFTexts, got %v", err)
		}
	})

	t.Run("questions replace progression state", func(t *testing.T) {
		texts := map[string]string{
			"notes.pdf": "What is a goroutine? How does a channel block? What does select do?",
		}
		snap, err := svc.GenerateQuestions(ctx, created.SessionID, texts)
		if err != nil {
			t.Fatalf("GenerateQuestions failed: %v", err)
		}
		if len(snap.Questions) == 0 {
			t.Fatal("expected questions to be generated")
		}
		if snap.CurrentIndex != 0 || snap.Revealed {
			t.Errorf("expected reset progression, got index=%d revealed=%v", snap.CurrentIndex, snap.Revealed)
		}
	})

	t.Run("unknown session fails before generation", func(t *testing.T) {
		_, err := svc.GenerateQuestions(ctx, "NOPE0000", map[string]string{"a.pdf": "Why?"})
		if !errors.Is(err, errFakeNotFound) {
			t.Errorf("expected store error, got %v", err)
		}
	})
}

func TestProgressionOperations(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := svc.GenerateQuestions(ctx, created.SessionID, map[string]string{
		"notes.pdf": "What is question one about? What is question two about?",
	}); err != nil {
		t.Fatalf("GenerateQuestions failed: %v", err)
	}

	t.Run("learner starts locked", func(t *testing.T) {
		view, err := svc.LearnerCurrent(ctx, created.SessionID)
		if err != nil {
			t.Fatalf("LearnerCurrent failed: %v", err)
		}
		if view.Status != engine.StatusLocked || view.Index != 0 || view.Question != "" {
			t.Errorf("unexpected initial view: %+v", view)
		}
	})

	t.Run("reveal then grade then next", func(t *testing.T) {
		snap, err := svc.Reveal(ctx, created.SessionID)
		if err != nil {
			t.Fatalf("Reveal failed: %v", err)
		}
		if !snap.Revealed {
			t.Error("expected revealed snapshot")
		}

		if _, err := svc.Grade(ctx, created.SessionID, 0, engine.GradeOK); err != nil {
			t.Fatalf("Grade failed: %v", err)
		}

		snap, err = svc.Next(ctx, created.SessionID)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if snap.CurrentIndex != 1 || snap.Revealed {
			t.Errorf("expected locked question 1, got index=%d revealed=%v", snap.CurrentIndex, snap.Revealed)
		}
	})

	t.Run("engine errors propagate", func(t *testing.T) {
		if _, err := svc.Grade(ctx, created.SessionID, 1, engine.GradeOK); !errors.Is(err, engine.ErrNotRevealed) {
			t.Errorf("expected ErrNotRevealed, got %v", err)
		}
		if _, err := svc.Jump(ctx, created.SessionID, 99); !errors.Is(err, engine.ErrIndexOutOfRange) {
			t.Errorf("expected ErrIndexOutOfRange, got %v", err)
		}
	})

	t.Run("concurrent grades converge to one value", func(t *testing.T) {
		if _, err := svc.Reveal(ctx, created.SessionID); err != nil {
			t.Fatalf("Reveal failed: %v", err)
		}

		statuses := []engine.GradeStatus{engine.GradeOK, engine.GradeMeh, engine.GradeFail}
		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(st engine.GradeStatus) {
				defer wg.Done()
				if _, err := svc.Grade(ctx, created.SessionID, 1, st); err != nil {
					t.Errorf("Grade failed: %v", err)
				}
			}(statuses[i%len(statuses)])
		}
		wg.Wait()

		snap, err := svc.ExaminerSnapshot(ctx, created.SessionID)
		if err != nil {
			t.Fatalf("ExaminerSnapshot failed: %v", err)
		}
		if got := snap.Grades[1]; !got.Valid() {
			t.Errorf("grade did not converge to a valid status: %q", got)
		}
	})
}

func TestAddPDFs(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	snap, err := svc.AddPDFs(ctx, created.SessionID, []PDFUpload{
		{Filename: "chapter1.pdf", Size: 1024},
		{Filename: "chapter2.pdf", Size: 2048},
	})
	if err != nil {
		t.Fatalf("AddPDFs failed: %v", err)
	}
	if len(snap.PDFs) != 2 {
		t.Fatalf("expected 2 pdfs, got %d", len(snap.PDFs))
	}
	if snap.PDFs[0].ID == "" || snap.PDFs[0].ID == snap.PDFs[1].ID {
		t.Error("expected unique non-empty pdf ids")
	}
}

func TestListSessions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := svc.JoinSession(ctx, second.SessionID, engine.RoleLearner); err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}

	infos, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	// Newest activity first: second was just joined.
	if infos[0].ID != second.SessionID {
		t.Errorf("expected %s first, got %s", second.SessionID, infos[0].ID)
	}
	if len(infos[0].Roles) != 2 {
		t.Errorf("expected both roles listed, got %v", infos[0].Roles)
	}
	if len(infos[1].Roles) != 1 || infos[1].ID != first.SessionID {
		t.Errorf("unexpected second entry: %+v", infos[1])
	}
}

func TestDeleteSession(t *testing.T) {
	svc, manager := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := svc.DeleteSession(ctx, created.SessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if manager.Count() != 0 {
		t.Error("session still present after delete")
	}
}
