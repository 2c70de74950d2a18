// Package llm wraps the language model backends used for detection and
// downstream processing.
package llm

import "context"

// Generator produces a completion for a raw prompt. The detection model
// implements this.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Completion is the result of a chat completion call.
type Completion struct {
	Content     string
	TotalTokens int
}

// Completer runs a chat completion against the processing model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}
