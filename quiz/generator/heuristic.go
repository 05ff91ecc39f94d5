package generator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Heuristic extracts question-like sentences straight from the material.
// Documents for examiner/learner drills frequently contain their own
// question lists; pulling those out beats inventing questions from scratch
// without a language model.
type Heuristic struct{}

// Compile-time check that Heuristic implements Generator.
var _ Generator = (*Heuristic)(nil)

// NewHeuristic creates the default generator.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	questionRe   = regexp.MustCompile(`[^.!?]*\?`)
	numberingRe  = regexp.MustCompile(`^\s*(?:\d+|[a-zA-Z])[.)]\s*`)
)

const (
	minQuestionLen = 10
	maxQuestionLen = 200
)

// Generate pulls sentences ending in a question mark out of the texts,
// de-duplicated and cleaned of list numbering. When the material yields
// fewer than n questions, generic prompts per document fill the remainder.
// Files are processed in filename order so output is deterministic.
func (h *Heuristic) Generate(ctx context.Context, texts map[string]string, n int) ([]string, error) {
	filenames := make([]string, 0, len(texts))
	for name := range texts {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	var questions []string
	seen := make(map[string]bool)

	for _, name := range filenames {
		text := whitespaceRe.ReplaceAllString(strings.TrimSpace(texts[name]), " ")
		for _, match := range questionRe.FindAllString(text, -1) {
			if len(questions) >= n {
				return questions, nil
			}

			q := strings.TrimSpace(numberingRe.ReplaceAllString(strings.TrimSpace(match), ""))
			if len(q) < minQuestionLen || len(q) > maxQuestionLen {
				continue
			}

			key := strings.ToLower(q)
			if seen[key] {
				continue
			}
			seen[key] = true
			questions = append(questions, q)
		}
	}

	// Not enough extractable questions: fall back to one open prompt per
	// document until the target count is reached.
	for i := 0; len(questions) < n && len(filenames) > 0; i++ {
		name := filenames[i%len(filenames)]
		prompt := fmt.Sprintf("Explain a key concept from %s in your own words.", name)
		if i >= len(filenames) {
			prompt = fmt.Sprintf("Explain another important aspect of %s.", name)
		}
		if seen[strings.ToLower(prompt)] {
			break
		}
		seen[strings.ToLower(prompt)] = true
		questions = append(questions, prompt)
	}

	return questions, nil
}
