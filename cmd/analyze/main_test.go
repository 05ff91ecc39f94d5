package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/session"
)

func writeSessionFile(t *testing.T, dir string, persisted *session.PersistedSessionData) string {
	t.Helper()
	data, err := json.Marshal(persisted)
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}
	path := filepath.Join(dir, persisted.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write session file: %v", err)
	}
	return path
}

func TestAnalyzeSessionFile(t *testing.T) {
	path := writeSessionFile(t, t.TempDir(), &session.PersistedSessionData{
		ID: "ABCD1234",
		Tokens: map[engine.Role]string{
			engine.RoleExaminer: "tok-e",
			engine.RoleLearner:  "tok-l",
		},
		CreatedAt:      time.Now().Add(-2 * time.Hour),
		LastAccessedAt: time.Now().Add(-10 * time.Minute),
		State: &engine.State{
			Questions:    []string{"Q1", "Q2", "Q3"},
			CurrentIndex: 2,
			Revealed:     true,
			Grades: map[int]engine.GradeStatus{
				0: engine.GradeOK,
				1: engine.GradeFail,
			},
			PDFs: []engine.PDFInfo{{ID: "pdf-1", Filename: "notes.pdf", Size: 1024}},
		},
	})

	stats, err := analyzeSessionFile(path)
	if err != nil {
		t.Fatalf("analyzeSessionFile failed: %v", err)
	}

	if stats.ID != "ABCD1234" {
		t.Errorf("Expected ID ABCD1234, got %s", stats.ID)
	}
	if stats.Questions != 3 {
		t.Errorf("Expected 3 questions, got %d", stats.Questions)
	}
	if stats.Graded != 2 || stats.OK != 1 || stats.Fail != 1 || stats.Meh != 0 {
		t.Errorf("Unexpected grade counts: %+v", stats)
	}
	if stats.Documents != 1 {
		t.Errorf("Expected 1 document, got %d", stats.Documents)
	}
	if stats.Completed {
		t.Error("Session with ungraded questions should not be completed")
	}
	if stats.IdleFor < 9*time.Minute {
		t.Errorf("Expected idle time around 10m, got %s", stats.IdleFor)
	}
}

func TestAnalyzeSessionFile_Completed(t *testing.T) {
	path := writeSessionFile(t, t.TempDir(), &session.PersistedSessionData{
		ID:             "WXYZ5678",
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
		State: &engine.State{
			Questions: []string{"Q1", "Q2"},
			Revealed:  true,
			Grades: map[int]engine.GradeStatus{
				0: engine.GradeOK,
				1: engine.GradeMeh,
			},
		},
	})

	stats, err := analyzeSessionFile(path)
	if err != nil {
		t.Fatalf("analyzeSessionFile failed: %v", err)
	}
	if !stats.Completed {
		t.Error("Fully graded session should be completed")
	}
}

func TestAnalyzeSessionFile_EmptyState(t *testing.T) {
	path := writeSessionFile(t, t.TempDir(), &session.PersistedSessionData{
		ID:             "EMPTY000",
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
		State:          engine.NewState(),
	})

	stats, err := analyzeSessionFile(path)
	if err != nil {
		t.Fatalf("analyzeSessionFile failed: %v", err)
	}
	if stats.Questions != 0 || stats.Graded != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
	if stats.Completed {
		t.Error("Session with no questions should not be completed")
	}
}

func TestAnalyzeSessionFile_InvalidFile(t *testing.T) {
	if _, err := analyzeSessionFile("/non/existent/file.json"); err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestAnalyzeSessionFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BAD00000.json")
	if err := os.WriteFile(path, []byte(`{"id": "BAD00000", invalid json}`), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := analyzeSessionFile(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestPrintStats_DoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printStats panicked: %v", r)
		}
	}()

	printStats(sessionStats{
		ID:        "ABCD1234",
		Questions: 3,
		Graded:    3,
		OK:        2,
		Meh:       1,
		Completed: true,
		IdleFor:   30 * time.Minute,
	}, time.Hour)

	printStats(sessionStats{ID: "EMPTY000", IdleFor: 2 * time.Hour}, time.Hour)
}

func TestPrintAggregate_DoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printAggregate panicked: %v", r)
		}
	}()

	printAggregate(nil)
	printAggregate([]sessionStats{
		{ID: "A", Questions: 3, Graded: 3, OK: 2, Completed: true},
		{ID: "B", Questions: 5, Graded: 1, OK: 0},
	})
}
