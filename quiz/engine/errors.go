package engine

import "errors"

// Transition errors. Each maps to exactly one precondition of the state
// machine so the API layer can translate them into HTTP statuses.
var (
	// ErrNoQuestions is returned when an operation needs a non-empty
	// question list (including SetQuestions with an empty slice).
	ErrNoQuestions = errors.New("session has no questions")

	// ErrAlreadyRevealed is returned when Reveal is called while the
	// current question is already revealed. Repeated reveals are rejected,
	// not silently accepted.
	ErrAlreadyRevealed = errors.New("current question already revealed")

	// ErrNotRevealed is returned when Grade or Next is called before the
	// current question has been revealed.
	ErrNotRevealed = errors.New("current question not revealed")

	// ErrIndexMismatch is returned when Grade targets an index other than
	// the current one. Prevents retroactive grade tampering from stale UI
	// state.
	ErrIndexMismatch = errors.New("grade index does not match current question")

	// ErrAtEnd is returned when Next is called on the last question.
	ErrAtEnd = errors.New("no more questions")

	// ErrIndexOutOfRange is returned when Jump targets an index outside
	// the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")

	// ErrInvalidGrade is returned for grade statuses other than ok, meh
	// or fail.
	ErrInvalidGrade = errors.New("invalid grade status")
)
