// Package service defines the ExamService boundary consumed by the HTTP
// layer and the transports, plus the Session type shared with the session
// store.
//
// The service package implements:
//   - Session lifecycle: creation, role joins, token authentication
//   - Delegation of progression operations to the per-session engine
//   - Role-scoped projections (learner view, examiner snapshot)
//   - Question generation wiring (Generator -> engine.SetQuestions)
//
// Every mutating operation funnels through SessionManager.Update, which
// serializes work on one session while leaving other sessions untouched.
package service
