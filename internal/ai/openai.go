package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned when no API key was supplied; callers treat it
// the same way as an upstream failure and fall back to the local summary.
var ErrNotConfigured = errors.New("ai: provider not configured")

// OpenAIConfig collects everything needed to talk to the OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string        // optional; empty means api.openai.com
	Project string        // optional OpenAI-Project header
	Model   string        // e.g. "gpt-4o-mini"
	Timeout time.Duration // per-call budget; zero disables the extra deadline
}

// OpenAI implements Provider and StreamProvider on top of the official-style
// sashabaranov client.
type OpenAI struct {
	client *openai.Client
	model  string
	budget time.Duration
}

// projectTransport injects the OpenAI-Project header on every request. The
// client config has no project field, so this rides on the HTTP client.
type projectTransport struct {
	base    http.RoundTripper
	project string
}

func (t *projectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("OpenAI-Project", t.project)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewOpenAI builds a provider from cfg. A missing API key yields a provider
// whose calls return ErrNotConfigured rather than a nil value, so wiring code
// never needs to branch.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &OpenAI{model: cfg.Model, budget: cfg.Timeout}
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Project != "" {
		cc.HTTPClient = &http.Client{Transport: &projectTransport{project: cfg.Project}}
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cc),
		model:  cfg.Model,
		budget: cfg.Timeout,
	}
}

// Configured reports whether a real upstream client exists.
func (p *OpenAI) Configured() bool { return p != nil && p.client != nil }

// Model returns the configured model tag.
func (p *OpenAI) Model() string { return p.model }

func (p *OpenAI) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.budget <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.budget)
}

func toOpenAI(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Complete performs one synchronous chat completion.
func (p *OpenAI) Complete(ctx context.Context, msgs []Message) (*Completion, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := p.deadline(ctx)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAI(msgs),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("ai: empty completion")
	}
	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream opens a streaming completion and forwards content deltas. The error
// channel receives exactly one value once streaming finishes.
func (p *OpenAI) Stream(ctx context.Context, msgs []Message) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)

	if !p.Configured() {
		close(deltas)
		errs <- ErrNotConfigured
		close(errs)
		return deltas, errs
	}

	go func() {
		defer close(errs)

		ctx, cancel := p.deadline(ctx)
		defer cancel()

		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: toOpenAI(msgs),
			Stream:   true,
		})
		if err != nil {
			close(deltas)
			errs <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				close(deltas)
				errs <- nil
				return
			}
			if err != nil {
				close(deltas)
				errs <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case deltas <- delta:
			case <-ctx.Done():
				close(deltas)
				errs <- ctx.Err()
				return
			}
		}
	}()

	return deltas, errs
}
