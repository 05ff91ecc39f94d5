// Command validate provides a small CLI that validates a server config file
// and the persisted session JSON files in a sessions directory. It checks:
//   - Config loads and passes the same validation the server applies
//   - Session filenames and IDs match the 8-char uppercase code format
//   - Current index is within question-list bounds
//   - Grade values are one of ok/meh/fail and only cover existing questions
//   - Token map only carries the examiner/learner roles
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/studyduel/studyduel/quiz/config"
	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/session"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfigFile loads the YAML config through the server's own loader.
func validateConfigFile(path string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(path),
		Valid:  true,
		Errors: []string{},
	}

	cfg, err := config.Load(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Listen: %s", cfg.Addr()))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Store: %s", cfg.Store))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Generator: %s", cfg.Generator.Kind))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Session TTL: %s", cfg.SessionTTL.Std()))
	return result
}

// validateSessionFile checks one persisted session JSON file.
func validateSessionFile(path string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(path),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var persisted session.PersistedSessionData
	if err := json.Unmarshal(data, &persisted); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	result.Valid, result.Errors = checkSession(&persisted)

	// Filename must match the session ID it stores.
	wantFile := persisted.ID + ".json"
	if result.File != wantFile {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Filename %s does not match session ID %s", result.File, persisted.ID))
	}

	return result
}

// checkSession validates the persisted payload itself.
func checkSession(persisted *session.PersistedSessionData) (bool, []string) {
	valid := true
	var msgs []string

	fail := func(format string, args ...interface{}) {
		valid = false
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	if !codePattern.MatchString(persisted.ID) {
		fail("Session ID %q is not an 8-char uppercase code", persisted.ID)
	}

	for role := range persisted.Tokens {
		if !engine.ValidRole(string(role)) {
			fail("Unknown role %q in token map", role)
		}
	}

	state := persisted.State
	if state == nil {
		fail("Missing state")
		return valid, msgs
	}

	total := len(state.Questions)
	if total == 0 {
		if state.CurrentIndex != 0 {
			fail("current_index %d with no questions", state.CurrentIndex)
		}
		if state.Revealed {
			fail("Revealed flag set with no questions")
		}
	} else if state.CurrentIndex < 0 || state.CurrentIndex >= total {
		fail("current_index %d out of range for %d questions", state.CurrentIndex, total)
	}

	for index, grade := range state.Grades {
		if !grade.Valid() {
			fail("Invalid grade %q at index %d", grade, index)
		}
		if index < 0 || index >= total {
			fail("Grade for index %d outside question list (%d questions)", index, total)
		}
	}

	if valid {
		msgs = append(msgs, fmt.Sprintf("✓ Session: %s", persisted.ID))
		msgs = append(msgs, fmt.Sprintf("✓ Questions: %d", total))
		msgs = append(msgs, fmt.Sprintf("✓ Grades: %d", len(state.Grades)))
		msgs = append(msgs, fmt.Sprintf("✓ Roles: %d", len(persisted.Tokens)))
		msgs = append(msgs, fmt.Sprintf("✓ Documents: %d", len(state.PDFs)))
	}
	return valid, msgs
}

func printResult(result ValidationResult) bool {
	fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

	if result.Valid {
		fmt.Println("✅ VALID")
		for _, info := range result.Errors {
			fmt.Println("  " + info)
		}
		return true
	}

	fmt.Println("❌ INVALID")
	for _, err := range result.Errors {
		if !strings.HasPrefix(err, "✓") {
			fmt.Println("  ❌ " + err)
		}
	}
	return false
}

// main validates the config file and every session JSON in the sessions
// directory, printing a concise report and exiting non-zero on any failure.
func main() {
	configPath := flag.String("config", "", "path to server config YAML (optional)")
	sessionsDir := flag.String("sessions", "../sessions", "directory of persisted session JSON files")
	flag.Parse()

	allValid := true

	if *configPath != "" {
		if !printResult(validateConfigFile(*configPath)) {
			allValid = false
		}
	}

	files, err := filepath.Glob(filepath.Join(*sessionsDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding session files: %v\n", err)
		os.Exit(1)
	}

	for _, file := range files {
		if !printResult(validateSessionFile(file)) {
			allValid = false
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All files are valid!")
	} else {
		fmt.Println("❌ Some files have errors")
		os.Exit(1)
	}
}
