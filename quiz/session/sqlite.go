package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/studyduel/studyduel/quiz/service"
)

// SQLiteStore implements SessionPersistence using SQLite via
// modernc.org/sqlite (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements SessionPersistence.
var _ SessionPersistence = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed persistence layer. dbPath is
// the path to the database file; use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			data_json   TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts a session row keyed by its code.
func (s *SQLiteStore) Save(sess *service.Session) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}

	data, err := json.Marshal(toPersisted(sess))
	if err != nil {
		return fmt.Errorf("session: marshal session: %w", err)
	}

	query := `
		INSERT INTO sessions (id, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data_json  = excluded.data_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.Exec(query,
		sess.ID,
		string(data),
		sess.CreatedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("session: save session: %w", err)
	}

	return nil
}

// Load retrieves a session by its code.
func (s *SQLiteStore) Load(id string) (*service.Session, error) {
	row := s.db.QueryRow(`SELECT data_json FROM sessions WHERE id = ?`, normalizeCode(id))

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: scan row: %w", err)
	}

	var data PersistedSessionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("session: unmarshal session: %w", err)
	}

	return fromPersisted(&data)
}

// Delete removes a session row.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, normalizeCode(id)); err != nil {
		return fmt.Errorf("session: delete session: %w", err)
	}
	return nil
}

// ListAll returns all persisted session IDs.
func (s *SQLiteStore) ListAll() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("session: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate rows: %w", err)
	}

	return ids, nil
}

// Exists checks if a session row is present.
func (s *SQLiteStore) Exists(id string) bool {
	row := s.db.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, normalizeCode(id))
	var one int
	return row.Scan(&one) == nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
