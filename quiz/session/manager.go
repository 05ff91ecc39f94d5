package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/service"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCodeExhausted   = errors.New("could not allocate a unique session code")
)

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// createAttempts bounds collision retries during code allocation.
	createAttempts = 5
)

// Manager handles session storage and lifecycle.
type Manager struct {
	sessions    map[string]*service.Session
	persistence SessionPersistence
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// NewManager creates a memory-only session manager.
func NewManager(logger zerolog.Logger) *Manager {
	return NewManagerWithPersistence(nil, logger)
}

// NewManagerWithPersistence creates a session manager backed by the given
// persistence layer. A nil persistence keeps sessions in memory only.
func NewManagerWithPersistence(persistence SessionPersistence, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*service.Session),
		persistence: persistence,
		logger:      logger.With().Str("component", "session_manager").Logger(),
	}
}

// Create allocates a new session under a freshly generated unique code.
func (m *Manager) Create() (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == createAttempts {
			return nil, ErrCodeExhausted
		}
		candidate, err := generateSessionCode()
		if err != nil {
			return nil, err
		}
		if _, taken := m.sessions[candidate]; taken {
			continue
		}
		if m.persistence != nil && m.persistence.Exists(candidate) {
			continue
		}
		id = candidate
		break
	}

	now := time.Now()
	sess := &service.Session{
		ID:             id,
		Engine:         engine.NewEngine(),
		Tokens:         make(map[engine.Role]string),
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	m.sessions[id] = sess

	if m.persistence != nil {
		if err := m.persistence.Save(sess); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("failed to persist new session")
		}
	}

	return sess, nil
}

// Get retrieves a session by code (case-insensitive). Sessions evicted from
// memory are transparently reloaded from persistence.
func (m *Manager) Get(id string) (*service.Session, error) {
	key := normalizeCode(id)

	m.mu.RLock()
	sess, exists := m.sessions[key]
	m.mu.RUnlock()

	if exists {
		return sess, nil
	}

	if m.persistence != nil && m.persistence.Exists(key) {
		loaded, err := m.persistence.Load(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted session: %w", err)
		}

		m.mu.Lock()
		// Another goroutine may have loaded it meanwhile; keep the first.
		if existing, ok := m.sessions[key]; ok {
			m.mu.Unlock()
			return existing, nil
		}
		m.sessions[key] = loaded
		m.mu.Unlock()

		return loaded, nil
	}

	return nil, ErrSessionNotFound
}

// Update applies an atomic read-modify-write to one session. The mutator
// runs under that session's lock; a nil return bumps the access time and
// autosaves to persistence.
func (m *Manager) Update(id string, fn func(*service.Session) error) error {
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

	// A session evicted by cleanup or Delete while this mutation was
	// waiting must not be resurrected in persistence by the autosave.
	if m.persistence != nil && m.inMemory(sess.ID) {
		if err := m.persistence.Save(sess); err != nil {
			m.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to persist session")
		}
	}

	return nil
}

// inMemory reports whether a session is still present in the live map. Safe
// to call while holding a session lock; the lock order is session then map.
func (m *Manager) inMemory(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// View runs a read-only callback under the session's lock. Access time is
// not bumped so that learner polling does not keep a session alive forever.
func (m *Manager) View(id string, fn func(*service.Session) error) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}

	sess.Lock()
	defer sess.Unlock()

	return fn(sess)
}

// List returns all sessions currently held in memory.
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	return result
}

// Delete removes a session from memory and persistence.
func (m *Manager) Delete(id string) error {
	key := normalizeCode(id)

	m.mu.Lock()
	_, inMemory := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if m.persistence != nil && m.persistence.Exists(key) {
		if err := m.persistence.Delete(key); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory removes a session from memory only, leaving persistence
// untouched. Used by the filesystem sync routine.
func (m *Manager) DeleteFromMemory(id string) error {
	key := normalizeCode(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[key]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, key)
	return nil
}

// Count returns the number of sessions held in memory.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions removes sessions that have not been accessed within
// maxAge, from memory and persistence. Returns the number removed.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	// LastAccessedAt is written by Update under the session lock, so it is
	// only read here under the same lock. Taking the map lock inside the
	// session lock keeps the session-then-map order Update's autosave uses.
	var expired []string
	for _, sess := range m.List() {
		sess.Lock()
		if sess.LastAccessedAt.Before(cutoff) {
			m.mu.Lock()
			delete(m.sessions, sess.ID)
			m.mu.Unlock()
			expired = append(expired, sess.ID)
		}
		sess.Unlock()
	}

	if m.persistence != nil {
		for _, id := range expired {
			if !m.persistence.Exists(id) {
				continue
			}
			if err := m.persistence.Delete(id); err != nil {
				m.logger.Warn().Err(err).Str("session_id", id).Msg("failed to delete expired session")
			}
		}
	}

	return len(expired)
}

// LoadPersistedSessions loads all persisted sessions into memory. Called
// once at startup.
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		key := normalizeCode(id)
		if _, exists := m.sessions[key]; exists {
			continue
		}

		sess, err := m.persistence.Load(key)
		if err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("failed to load persisted session")
			continue
		}

		m.sessions[key] = sess
		loaded++
	}

	if loaded > 0 {
		m.logger.Info().Int("count", loaded).Msg("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions flushes every in-memory session to persistence. Used on
// shutdown.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	failed := 0
	for _, sess := range m.List() {
		sess.Lock()
		err := m.persistence.Save(sess)
		sess.Unlock()
		if err != nil {
			m.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to save session")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}

// HasPersistence reports whether a persistence backend is configured.
func (m *Manager) HasPersistence() bool {
	return m.persistence != nil
}

// PersistenceExists reports whether a session is present in persistence.
func (m *Manager) PersistenceExists(id string) bool {
	return m.persistence != nil && m.persistence.Exists(normalizeCode(id))
}

// normalizeCode uppercases a client-supplied session code.
func normalizeCode(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// generateSessionCode produces a random 8-character uppercase alphanumeric
// code.
func generateSessionCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read code entropy: %w", err)
	}

	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
