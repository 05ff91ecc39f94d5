package session

import (
	"fmt"
	"time"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/service"
)

// SessionPersistence defines the interface for persisting sessions.
type SessionPersistence interface {
	// Save persists a session to storage. Callers hold the session lock.
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID.
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage.
	Delete(id string) error

	// ListAll returns all persisted session IDs.
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage.
	Exists(id string) bool
}

// PersistedSessionData is the serialized form shared by all backends.
type PersistedSessionData struct {
	ID             string                 `json:"id"`
	Tokens         map[engine.Role]string `json:"tokens"`
	CreatedAt      time.Time              `json:"created_at"`
	LastAccessedAt time.Time              `json:"last_accessed_at"`
	State          *engine.State          `json:"state"`
}

// toPersisted converts a live session into its serialized form.
func toPersisted(sess *service.Session) *PersistedSessionData {
	return &PersistedSessionData{
		ID:             sess.ID,
		Tokens:         sess.Tokens,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		State:          sess.Engine.State(),
	}
}

// fromPersisted rebuilds a live session from its serialized form.
func fromPersisted(data *PersistedSessionData) (*service.Session, error) {
	eng, err := engine.NewEngineWithState(data.State)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session state: %w", err)
	}

	tokens := data.Tokens
	if tokens == nil {
		tokens = make(map[engine.Role]string)
	}

	return &service.Session{
		ID:             data.ID,
		Engine:         eng,
		Tokens:         tokens,
		CreatedAt:      data.CreatedAt,
		LastAccessedAt: data.LastAccessedAt,
	}, nil
}
