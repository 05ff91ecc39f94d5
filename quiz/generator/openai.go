package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// maxInputChars caps how much extracted text is sent per request.
	maxInputChars = 24000

	systemPrompt = "You write exam questions. Given study material, produce open-ended " +
		"questions that test understanding of the material. Output one question per " +
		"line with no numbering, no headers and no commentary."
)

// OpenAI generates questions through an OpenAI-compatible chat completion
// API. Any endpoint speaking the same protocol works via baseURL.
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates an LLM-backed generator. baseURL may be empty for the
// default OpenAI endpoint; model defaults to gpt-4o-mini.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Generate asks the model for n questions over the combined texts.
func (g *OpenAI) Generate(ctx context.Context, texts map[string]string, n int) ([]string, error) {
	prompt := buildPrompt(texts, n)

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	questions := parseQuestionLines(completion.Choices[0].Message.Content, n)
	if len(questions) == 0 {
		return nil, fmt.Errorf("model output contained no questions")
	}
	return questions, nil
}

// buildPrompt concatenates the per-file texts in filename order, truncated
// to keep the request within a sane token budget.
func buildPrompt(texts map[string]string, n int) string {
	filenames := make([]string, 0, len(texts))
	for name := range texts {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d exam questions based on the following material.\n", n)
	for _, name := range filenames {
		if b.Len() >= maxInputChars {
			break
		}
		fmt.Fprintf(&b, "\n--- %s ---\n", name)
		text := texts[name]
		if remaining := maxInputChars - b.Len(); len(text) > remaining {
			text = text[:remaining]
		}
		b.WriteString(text)
	}
	return b.String()
}

// parseQuestionLines splits model output into clean question strings.
func parseQuestionLines(output string, n int) []string {
	var questions []string
	for _, line := range strings.Split(output, "\n") {
		q := strings.TrimSpace(numberingRe.ReplaceAllString(strings.TrimSpace(line), ""))
		q = strings.Trim(q, "-*• ")
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) >= n {
			break
		}
	}
	return questions
}
