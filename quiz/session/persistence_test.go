package session

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/service"
)

// backends returns one instance of every persistence implementation, each
// against throwaway storage.
func backends(t *testing.T) map[string]SessionPersistence {
	t.Helper()

	fp, err := NewFilePersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilePersistence failed: %v", err)
	}

	sq, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]SessionPersistence{
		"file":   fp,
		"sqlite": sq,
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManagerWithPersistence(p, zerolog.Nop())

			created, err := manager.Create()
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if err := manager.Update(created.ID, func(ss *service.Session) error {
				ss.Tokens[engine.RoleExaminer] = "tok-examiner"
				if err := ss.Engine.SetQuestions([]string{"Q1", "Q2"}); err != nil {
					return err
				}
				if err := ss.Engine.Reveal(); err != nil {
					return err
				}
				return ss.Engine.Grade(0, engine.GradeMeh)
			}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			// Simulate a restart: a new manager over the same storage.
			restarted := NewManagerWithPersistence(p, zerolog.Nop())
			if err := restarted.LoadPersistedSessions(); err != nil {
				t.Fatalf("LoadPersistedSessions failed: %v", err)
			}

			sess, err := restarted.Get(created.ID)
			if err != nil {
				t.Fatalf("Get after restart failed: %v", err)
			}

			state := sess.Engine.State()
			if len(state.Questions) != 2 || !state.Revealed || state.CurrentIndex != 0 {
				t.Errorf("state not restored: %+v", state)
			}
			if state.Grades[0] != engine.GradeMeh {
				t.Errorf("grades not restored: %v", state.Grades)
			}
			if sess.Tokens[engine.RoleExaminer] != "tok-examiner" {
				t.Errorf("tokens not restored: %v", sess.Tokens)
			}
		})
	}
}

func TestPersistence_Delete(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManagerWithPersistence(p, zerolog.Nop())
			created, err := manager.Create()
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if !p.Exists(created.ID) {
				t.Fatal("session not persisted on create")
			}
			if err := manager.Delete(created.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if p.Exists(created.ID) {
				t.Error("persisted session not removed on delete")
			}
			if _, err := p.Load(created.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestPersistence_UpdateDoesNotResurrectDeleted(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManagerWithPersistence(p, zerolog.Nop())
			created, err := manager.Create()
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			// Evict the session while its own mutation holds the lock. The
			// autosave must notice the eviction and skip writing it back.
			if err := manager.Update(created.ID, func(ss *service.Session) error {
				return manager.Delete(ss.ID)
			}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			if p.Exists(created.ID) {
				t.Error("deleted session written back to persistence by autosave")
			}
			if _, err := manager.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestFilePersistence_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fp, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("NewFilePersistence failed: %v", err)
	}

	manager := NewManagerWithPersistence(fp, zerolog.Nop())
	created, err := manager.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Save again over the existing file to exercise the replace path.
	if err := manager.Update(created.ID, func(ss *service.Session) error {
		return ss.Engine.SetQuestions([]string{"Q1"})
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}

	sess, err := fp.Load(created.ID)
	if err != nil {
		t.Fatalf("Load after replace failed: %v", err)
	}
	if len(sess.Engine.State().Questions) != 1 {
		t.Errorf("replaced file not loaded back intact: %+v", sess.Engine.State())
	}
}

func TestPersistence_ListAll(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manager := NewManagerWithPersistence(p, zerolog.Nop())

			want := make(map[string]bool)
			for i := 0; i < 3; i++ {
				sess, err := manager.Create()
				if err != nil {
					t.Fatalf("Create failed: %v", err)
				}
				want[sess.ID] = true
			}

			ids, err := p.ListAll()
			if err != nil {
				t.Fatalf("ListAll failed: %v", err)
			}
			if len(ids) != len(want) {
				t.Fatalf("expected %d ids, got %d", len(want), len(ids))
			}
			for _, id := range ids {
				if !want[id] {
					t.Errorf("unexpected persisted id %s", id)
				}
			}
		})
	}
}
