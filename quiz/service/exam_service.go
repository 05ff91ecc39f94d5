package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/generator"
	"github.com/studyduel/studyduel/quiz/token"
)

var (
	// ErrInvalidRole is returned for join requests naming an unknown role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrRoleOccupied is returned when a role already holds a live token.
	// Rejoin is rejected rather than reissued so a session code alone is
	// never enough to obtain a credential that is already in use.
	ErrRoleOccupied = errors.New("role already occupied")

	// ErrUnauthorized is returned when a token matches neither role of the
	// session.
	ErrUnauthorized = errors.New("invalid token")

	// ErrNoPDFTexts is returned when question generation is requested
	// without any source text.
	ErrNoPDFTexts = errors.New("no pdf texts provided")
)

// examServiceImpl implements the ExamService interface.
type examServiceImpl struct {
	sessions      SessionManager
	generator     generator.Generator
	questionCount int
	logger        zerolog.Logger
}

// NewExamService creates a new exam service instance. questionCount is the
// target size of a generated question list.
func NewExamService(sessions SessionManager, gen generator.Generator, questionCount int, logger zerolog.Logger) ExamService {
	return &examServiceImpl{
		sessions:      sessions,
		generator:     gen,
		questionCount: questionCount,
		logger:        logger.With().Str("component", "exam_service").Logger(),
	}
}

// CreateSession allocates a session and issues the examiner token.
func (s *examServiceImpl) CreateSession(ctx context.Context) (*CreateResult, error) {
	sess, err := s.sessions.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	examinerToken, err := token.Issue()
	if err != nil {
		return nil, fmt.Errorf("failed to issue examiner token: %w", err)
	}

	if err := s.sessions.Update(sess.ID, func(ss *Session) error {
		ss.Tokens[engine.RoleExaminer] = examinerToken
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to store examiner token: %w", err)
	}

	s.logger.Info().Str("session_id", sess.ID).Msg("session created")

	return &CreateResult{
		SessionID:     sess.ID,
		ExaminerToken: examinerToken,
	}, nil
}

// JoinSession issues a token for an unoccupied role of an existing session.
func (s *examServiceImpl) JoinSession(ctx context.Context, sessionID string, role engine.Role) (string, error) {
	if !engine.ValidRole(string(role)) {
		return "", ErrInvalidRole
	}

	newToken, err := token.Issue()
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	if err := s.sessions.Update(sessionID, func(ss *Session) error {
		if _, occupied := ss.Tokens[role]; occupied {
			return ErrRoleOccupied
		}
		ss.Tokens[role] = newToken
		return nil
	}); err != nil {
		return "", err
	}

	s.logger.Info().Str("session_id", sessionID).Str("role", string(role)).Msg("role joined")
	return newToken, nil
}

// Authenticate resolves a presented token to the role it was issued for.
func (s *examServiceImpl) Authenticate(ctx context.Context, sessionID, presented string) (engine.Role, error) {
	var role engine.Role
	err := s.sessions.View(sessionID, func(ss *Session) error {
		for r, stored := range ss.Tokens {
			if token.Matches(stored, presented) {
				role = r
				return nil
			}
		}
		return ErrUnauthorized
	})
	if err != nil {
		return "", err
	}
	return role, nil
}

// DeleteSession removes a session from the store and persistence.
func (s *examServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(sessionID)
}

// ListSessions returns lightweight info for all active sessions, newest
// first.
func (s *examServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))

	for _, sess := range sessions {
		info := &SessionInfo{ID: sess.ID}
		if err := s.sessions.View(sess.ID, func(ss *Session) error {
			info.CreatedAt = ss.CreatedAt
			info.LastAccessedAt = ss.LastAccessedAt
			info.QuestionCount = len(ss.Engine.State().Questions)
			for role := range ss.Tokens {
				info.Roles = append(info.Roles, role)
			}
			sort.Slice(info.Roles, func(i, j int) bool { return info.Roles[i] < info.Roles[j] })
			return nil
		}); err != nil {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastAccessedAt.After(result[j].LastAccessedAt)
	})
	return result, nil
}

// AddPDFs appends document descriptors for uploaded study material.
func (s *examServiceImpl) AddPDFs(ctx context.Context, sessionID string, uploads []PDFUpload) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.sessions.Update(sessionID, func(ss *Session) error {
		for _, u := range uploads {
			ss.Engine.AddPDF(u.Filename, u.Size)
		}
		snap = ss.Engine.Snapshot(ss.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GenerateQuestions runs the configured generator over the supplied texts and
// installs the result as the session's question list. The generator call
// happens outside the session lock; only SetQuestions runs under it.
func (s *examServiceImpl) GenerateQuestions(ctx context.Context, sessionID string, pdfTexts map[string]string) (*engine.Snapshot, error) {
	if len(pdfTexts) == 0 {
		return nil, ErrNoPDFTexts
	}

	// Fail early with NotFound before paying for generation.
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	questions, err := s.generator.Generate(ctx, pdfTexts, s.questionCount)
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	var snap *engine.Snapshot
	if err := s.sessions.Update(sessionID, func(ss *Session) error {
		if err := ss.Engine.SetQuestions(questions); err != nil {
			return err
		}
		snap = ss.Engine.Snapshot(ss.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("session_id", sessionID).Int("questions", len(questions)).Msg("questions generated")
	return snap, nil
}

// Reveal makes the current question visible to the learner.
func (s *examServiceImpl) Reveal(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.mutate(sessionID, func(e *engine.Engine) error { return e.Reveal() })
}

// Grade records the examiner's judgment for the current question.
func (s *examServiceImpl) Grade(ctx context.Context, sessionID string, index int, status engine.GradeStatus) (*engine.Snapshot, error) {
	return s.mutate(sessionID, func(e *engine.Engine) error { return e.Grade(index, status) })
}

// Next advances to the following question.
func (s *examServiceImpl) Next(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.mutate(sessionID, func(e *engine.Engine) error { return e.Next() })
}

// Jump moves directly to an arbitrary question index.
func (s *examServiceImpl) Jump(ctx context.Context, sessionID string, index int) (*engine.Snapshot, error) {
	return s.mutate(sessionID, func(e *engine.Engine) error { return e.Jump(index) })
}

// LearnerCurrent returns the learner projection of the session.
func (s *examServiceImpl) LearnerCurrent(ctx context.Context, sessionID string) (*engine.LearnerView, error) {
	var view *engine.LearnerView
	err := s.sessions.View(sessionID, func(ss *Session) error {
		view = ss.Engine.LearnerView()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ExaminerSnapshot returns the full session snapshot.
func (s *examServiceImpl) ExaminerSnapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.sessions.View(sessionID, func(ss *Session) error {
		snap = ss.Engine.Snapshot(ss.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// mutate applies one engine transition under the session lock and returns
// the updated snapshot.
func (s *examServiceImpl) mutate(sessionID string, fn func(*engine.Engine) error) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.sessions.Update(sessionID, func(ss *Session) error {
		if err := fn(ss.Engine); err != nil {
			return err
		}
		snap = ss.Engine.Snapshot(ss.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
