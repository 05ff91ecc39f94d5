// Package api provides the HTTP REST surface of the quiz session server.
//
// The api package implements:
//   - Session lifecycle endpoints (create, join)
//   - Examiner progression endpoints (upload, generate, reveal, grade, next, jump)
//   - Role-scoped read endpoints (learner view, examiner snapshot)
//   - WebSocket upgrade with token authentication
//   - Request logging and per-IP rate limiting middleware
//
// Endpoints:
//
// Lifecycle (unauthenticated, rate-limited):
//   - POST /session - create session, returns {session_id, examiner_token}
//   - POST /session/{id}/join - claim a free role, body {role}, returns {token, role}
//
// Examiner (X-Token bound to the examiner role):
//   - POST /session/{id}/upload - multipart upload of .pdf files
//   - POST /session/{id}/generate - body {pdf_texts}, installs generated questions
//   - GET  /session/{id}/questions - full session snapshot
//   - POST /session/{id}/reveal - reveal the current question
//   - POST /session/{id}/grade - body {index, status}
//   - POST /session/{id}/next - advance to the next question
//   - POST /session/{id}/jump/{index} - move to an arbitrary question
//
// Learner (X-Token bound to the learner role):
//   - GET /session/{id}/current - {status, index, question?, total}
//
// Other:
//   - GET /ws?session=CODE&token=... - push channel upgrade
//   - GET /health - liveness
//
// Error Handling:
//
// Errors are returned as JSON with a machine-readable kind:
//
//	{
//	  "error": "current question is not revealed",
//	  "kind": "not_revealed"
//	}
//
// Domain errors map to 404 (unknown session), 401 (missing/foreign token or
// wrong role), 409 (transition rejected by session state) and 400 (malformed
// input). Every successful mutation is pushed to the session's WebSocket
// clients with each client receiving only its role's projection.
package api
