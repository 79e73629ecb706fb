package llm

import (
	"context"
	"fmt"
	"strings"
)

// Answerer turns a retrieved context and a question into an answer.
type Answerer interface {
	GenerateAnswer(ctx context.Context, passages, question string) (string, error)
}

// Prompt is a question about the user's documents together with the
// excerpts retrieved for it.
type Prompt struct {
	// Instructions tell the model how to use the excerpts.
	Instructions string

	// Context holds the retrieved excerpts, separated by blank lines.
	Context string

	// Question is the user's question, verbatim.
	Question string
}

// BuildPrompt returns the prompt for answering question from passages.
func BuildPrompt(passages, question string) Prompt {
	return Prompt{
		Instructions: systemPrompt,
		Context:      passages,
		Question:     question,
	}
}

// Text renders the excerpts and question as one message, for providers
// without a separate document input.
func (p Prompt) Text() string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(p.Context)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(p.Question)
	return sb.String()
}

// contextHeader introduces the excerpts when they are sent as their own
// content part.
const contextHeader = "Excerpts from the user's documents:\n\n"

// Generator answers questions with an LLM, grounding it in the given context.
type Generator struct {
	llm  Service
	opts CompletionOptions
}

var _ Answerer = (*Generator)(nil)

// NewGenerator creates a Generator. Zero option values use the defaults.
func NewGenerator(svc Service, opts CompletionOptions) *Generator {
	def := DefaultCompletionOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = def.Temperature
	}
	return &Generator{llm: svc, opts: opts}
}

// GenerateAnswer asks the model to answer question using only passages.
func (g *Generator) GenerateAnswer(ctx context.Context, passages, question string) (string, error) {
	answer, err := g.llm.Answer(ctx, BuildPrompt(passages, question), g.opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

const systemPrompt = `You answer questions about the user's documents.

Use only the excerpts provided with the question. They are separated by blank
lines and may be incomplete.

If the excerpts do not contain the answer, say that you could not find it in
the documents instead of guessing. Keep answers short and quote the document
text when it helps.`
