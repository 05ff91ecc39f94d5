package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Engine enforces the question progression state machine over a State.
type Engine struct {
	state *State
}

// NewEngine creates an engine with an empty state.
func NewEngine() *Engine {
	return &Engine{state: NewState()}
}

// NewEngineWithState creates an engine from a previously persisted state.
func NewEngineWithState(state *State) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	if state.Grades == nil {
		state.Grades = make(map[int]GradeStatus)
	}
	if len(state.Questions) > 0 && (state.CurrentIndex < 0 || state.CurrentIndex >= len(state.Questions)) {
		return nil, fmt.Errorf("persisted current index %d out of range [0,%d): %w",
			state.CurrentIndex, len(state.Questions), ErrIndexOutOfRange)
	}
	return &Engine{state: state}, nil
}

// State returns the underlying state (used for persistence saving).
func (e *Engine) State() *State {
	return e.state
}

// AddPDF appends a document descriptor for uploaded study material.
func (e *Engine) AddPDF(filename string, size int64) PDFInfo {
	info := PDFInfo{
		ID:         uuid.New().String(),
		Filename:   filename,
		Size:       size,
		UploadedAt: time.Now(),
	}
	e.state.PDFs = append(e.state.PDFs, info)
	return info
}

// SetQuestions installs a new question list. Regeneration overwrites the
// whole list: current index and reveal flag reset, grades are cleared.
func (e *Engine) SetQuestions(questions []string) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	e.state.Questions = questions
	e.state.CurrentIndex = 0
	e.state.Revealed = false
	e.state.Grades = make(map[int]GradeStatus)
	return nil
}

// Reveal makes the current question visible to the learner. A second reveal
// while already revealed is rejected and leaves the flag untouched.
func (e *Engine) Reveal() error {
	if len(e.state.Questions) == 0 {
		return ErrNoQuestions
	}
	if e.state.Revealed {
		return ErrAlreadyRevealed
	}

	e.state.Revealed = true
	return nil
}

// Grade records the examiner's judgment for the current question. The index
// must match the current one and the question must be revealed; a repeated
// grade for the same index overwrites the previous one.
func (e *Engine) Grade(index int, status GradeStatus) error {
	if len(e.state.Questions) == 0 {
		return ErrNoQuestions
	}
	if !status.Valid() {
		return ErrInvalidGrade
	}
	if !e.state.Revealed {
		return ErrNotRevealed
	}
	if index != e.state.CurrentIndex {
		return ErrIndexMismatch
	}

	e.state.Grades[index] = status
	return nil
}

// Next advances to the following question and re-locks it. The current
// question must have been revealed first; a grade is not required.
func (e *Engine) Next() error {
	if len(e.state.Questions) == 0 {
		return ErrNoQuestions
	}
	if !e.state.Revealed {
		return ErrNotRevealed
	}
	if e.state.CurrentIndex >= len(e.state.Questions)-1 {
		return ErrAtEnd
	}

	e.state.CurrentIndex++
	e.state.Revealed = false
	return nil
}

// Jump moves directly to an arbitrary question index and re-locks it,
// regardless of prior reveal or grading state. Examiner override path.
func (e *Engine) Jump(index int) error {
	if len(e.state.Questions) == 0 {
		return ErrNoQuestions
	}
	if index < 0 || index >= len(e.state.Questions) {
		return ErrIndexOutOfRange
	}

	e.state.CurrentIndex = index
	e.state.Revealed = false
	return nil
}

// LearnerView returns the learner projection. Question text is withheld
// unless the current question is revealed. The session counts as completed
// once every question has a grade.
func (e *Engine) LearnerView() *LearnerView {
	view := &LearnerView{
		Status: StatusLocked,
		Index:  e.state.CurrentIndex,
		Total:  len(e.state.Questions),
	}

	if view.Total > 0 && len(e.state.Grades) == view.Total {
		view.Status = StatusCompleted
		return view
	}

	if e.state.Revealed {
		view.Status = StatusRevealed
		view.Question = e.state.Questions[e.state.CurrentIndex]
	}

	return view
}

// Snapshot returns the full examiner projection. Slices and the grade map
// are copied so callers can serialize outside the session lock.
func (e *Engine) Snapshot(sessionID string) *Snapshot {
	questions := make([]string, len(e.state.Questions))
	copy(questions, e.state.Questions)

	pdfs := make([]PDFInfo, len(e.state.PDFs))
	copy(pdfs, e.state.PDFs)

	grades := make(map[int]GradeStatus, len(e.state.Grades))
	for i, g := range e.state.Grades {
		grades[i] = g
	}

	return &Snapshot{
		SessionID:    sessionID,
		Questions:    questions,
		CurrentIndex: e.state.CurrentIndex,
		Revealed:     e.state.Revealed,
		Grades:       grades,
		PDFs:         pdfs,
	}
}
