// Package websocket pushes live session updates to connected clients.
//
// The package implements:
//   - Session-aware WebSocket connections
//   - Role-scoped state broadcasting on every mutation
//   - Connection lifecycle management with ping/pong keepalive
//
// Architecture:
//
// A central Hub manages all connections in a hub-and-spoke model. Each client
// connection runs a dedicated read and write goroutine; the Hub's Run loop is
// the only goroutine touching the session/client maps.
//
// Message Protocol:
//
// Clients do not send application messages; the session is driven through the
// HTTP API and the socket is push-only. Outgoing frames are JSON:
//   - learners receive {session_id, event: "state_update", view: {...}}
//   - examiners receive {session_id, event: "state_update", snapshot: {...}}
//
// A learner's frame never carries the text of an unrevealed question.
//
// Session Integration:
//
// Clients connect with their session code and token (GET /ws?session=CODE
// with X-Token). The HTTP layer authenticates the token and hands the
// resolved role to ServeWS; updates are broadcast only to clients of the
// same session.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run()
//
//	// after a successful mutation:
//	hub.BroadcastToSession(sessionID, learnerView, examinerSnapshot)
package websocket
