// Package engine provides the question progression state machine for a
// StudyDuel session.
//
// The engine package implements:
//   - The reveal/grade/next/jump transitions over an ordered question list
//   - Role-scoped projections (learner view vs. full examiner snapshot)
//   - PDF descriptor bookkeeping for uploaded study material
//
// Core Types:
//
// Engine wraps a State and enforces every transition precondition. State is
// the plain serializable data (questions, current index, revealed flag,
// grades, PDF descriptors) that persistence backends store as JSON.
//
// State Machine:
//
// A session with questions is either Locked (current question hidden from the
// learner) or Revealed. Grading is only possible while revealed and only for
// the current index. Next requires the current question to have been revealed
// and re-locks the following one. Jump is the examiner override that moves to
// an arbitrary index, re-locking it.
//
// Usage:
//
//	eng := engine.NewEngine()
//	if err := eng.SetQuestions([]string{"Q1", "Q2"}); err != nil {
//		log.Fatal(err)
//	}
//
//	if err := eng.Reveal(); err != nil {
//		log.Fatal(err)
//	}
//	err := eng.Grade(0, engine.GradeOK)
//
// Concurrency:
//
// The engine itself is not goroutine-safe. Callers serialize access per
// session; the session manager provides that lock.
package engine
