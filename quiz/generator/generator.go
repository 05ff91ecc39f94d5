// Package generator turns study-material text into exam questions. The core
// treats generation as an external concern behind the Generator interface;
// the server ships a regex-based heuristic and an optional LLM-backed
// implementation.
package generator

import "context"

// Generator produces up to n exam questions from per-file study texts.
type Generator interface {
	// Generate returns at most n questions derived from texts, a mapping
	// of filename to extracted text content.
	Generate(ctx context.Context, texts map[string]string, n int) ([]string, error)
}
