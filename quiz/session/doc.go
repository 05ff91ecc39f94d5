// Package session provides the session store for the StudyDuel server.
//
// The session package implements:
//   - Thread-safe session storage keyed by short uppercase codes
//   - Collision-resistant code generation using cryptographic randomness
//   - Per-session mutual exclusion: Update/View lock only the target
//     session, so operations on different sessions never contend
//   - TTL-based cleanup of idle sessions
//   - Optional persistence behind the SessionPersistence interface, with
//     file (JSON per session) and SQLite backends
//
// Session Codes:
//
// Sessions use 8-character uppercase alphanumeric codes for easy sharing.
// Lookups are case-insensitive; codes are stored and compared uppercase.
//
// Concurrency:
//
// The manager's own lock guards only the session map. All reads and writes
// of a session's engine and tokens go through Update or View, which hold
// that session's mutex for the duration of the callback. A successful
// Update bumps the access time and autosaves to persistence.
package session
