// Package mcp provides a Model Context Protocol interface to the quiz
// session server.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions for the full session lifecycle
//   - Token-aware command execution (tokens forwarded as X-Token)
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools:
//   - create_session: Create a session (returns code + examiner token)
//   - join_session: Claim a free role in an existing session
//   - session_snapshot: Full examiner view of questions, grades, progress
//   - learner_view: The learner's current projection
//   - generate_questions: Install the question list from study-material text
//   - reveal_question: Reveal the current question
//   - grade_question: Record ok/meh/fail for the current question
//   - next_question: Advance the progression
//   - jump_to_question: Move to an arbitrary question index
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: Direct stdio communication for local MCP clients
//   - HTTP: /mcp endpoint on the main HTTP server
//
// Design:
//
// The client is a thin proxy: every tool call becomes a REST request against
// the running API server, so the same auth and state rules apply whether an
// examiner drives the session through HTTP or through an agent.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
