// Command analyze prints quick, human-readable statistics about persisted
// session files in a sessions directory. It summarizes question counts, grade
// distributions and completion rates per session, and highlights sessions
// that look stalled (revealed long ago but never graded).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/session"
)

// sessionStats is the per-session summary printed by the analyzer.
type sessionStats struct {
	ID        string
	Questions int
	Graded    int
	OK        int
	Meh       int
	Fail      int
	Documents int
	Completed bool
	IdleFor   time.Duration
}

func main() {
	sessionsDir := flag.String("sessions", "sessions", "directory of persisted session JSON files")
	staleAfter := flag.Duration("stale-after", time.Hour, "flag sessions idle longer than this")
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*sessionsDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding session files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No session files found in %s\n", *sessionsDir)
		return
	}

	sort.Strings(files)

	var all []sessionStats
	for _, file := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(file))
		stats, err := analyzeSessionFile(file)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printStats(stats, *staleAfter)
		all = append(all, stats)
	}

	printAggregate(all)
}

// analyzeSessionFile reads one persisted session and computes its summary.
func analyzeSessionFile(path string) (sessionStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sessionStats{}, fmt.Errorf("reading file: %w", err)
	}

	var persisted session.PersistedSessionData
	if err := json.Unmarshal(data, &persisted); err != nil {
		return sessionStats{}, fmt.Errorf("parsing JSON: %w", err)
	}

	stats := sessionStats{
		ID:      persisted.ID,
		IdleFor: time.Since(persisted.LastAccessedAt),
	}

	state := persisted.State
	if state == nil {
		return stats, nil
	}

	stats.Questions = len(state.Questions)
	stats.Documents = len(state.PDFs)

	for _, grade := range state.Grades {
		stats.Graded++
		switch grade {
		case engine.GradeOK:
			stats.OK++
		case engine.GradeMeh:
			stats.Meh++
		case engine.GradeFail:
			stats.Fail++
		}
	}

	stats.Completed = stats.Questions > 0 && stats.Graded == stats.Questions
	return stats, nil
}

func printStats(stats sessionStats, staleAfter time.Duration) {
	fmt.Printf("Session: %s\n", stats.ID)
	fmt.Printf("Questions: %d\n", stats.Questions)
	fmt.Printf("Documents: %d\n", stats.Documents)

	if stats.Questions == 0 {
		fmt.Println("⚠️  No questions generated yet")
	} else {
		fmt.Printf("Graded: %d/%d (ok: %d, meh: %d, fail: %d)\n",
			stats.Graded, stats.Questions, stats.OK, stats.Meh, stats.Fail)
		if stats.Completed {
			fmt.Println("✅ Session completed")
		}
	}

	fmt.Printf("Idle for: %s\n", stats.IdleFor.Round(time.Minute))
	if !stats.Completed && stats.IdleFor > staleAfter {
		fmt.Printf("⚠️  Session looks stalled (idle > %s and not completed)\n", staleAfter)
	}
}

func printAggregate(all []sessionStats) {
	if len(all) == 0 {
		return
	}

	totalQuestions := 0
	totalGraded := 0
	totalOK := 0
	completed := 0
	for _, stats := range all {
		totalQuestions += stats.Questions
		totalGraded += stats.Graded
		totalOK += stats.OK
		if stats.Completed {
			completed++
		}
	}

	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Sessions: %d (%d completed)\n", len(all), completed)
	fmt.Printf("Questions: %d total, %d graded\n", totalQuestions, totalGraded)
	if totalGraded > 0 {
		fmt.Printf("Pass rate: %.0f%% graded ok\n", 100*float64(totalOK)/float64(totalGraded))
	}
}
