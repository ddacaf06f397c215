// Package ai abstracts the upstream chat-completion provider behind a small
// interface so the assistant pipeline can swap between the real OpenAI client
// and local fakes in tests.
package ai

import "context"

// Message is a single chat turn handed to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the token accounting the provider reported for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a synchronous chat call.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Provider produces one complete assistant reply for a conversation prefix.
type Provider interface {
	// Complete blocks until the provider answers or ctx is done.
	Complete(ctx context.Context, msgs []Message) (*Completion, error)
}

// StreamProvider produces an incremental reply. Deltas arrive on the first
// channel; exactly one value is sent on the error channel after the delta
// channel closes (nil on success). Both channels are closed by the provider.
type StreamProvider interface {
	Provider
	Stream(ctx context.Context, msgs []Message) (<-chan string, <-chan error)
}
