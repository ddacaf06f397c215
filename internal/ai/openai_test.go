package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newFakeOpenAI(t *testing.T, handler http.HandlerFunc) (*OpenAI, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAI(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Project: "proj_test",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	return p, srv
}

func TestNewOpenAI_MissingKey(t *testing.T) {
	p := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini"})
	if p.Configured() {
		t.Fatal("provider without key must not be configured")
	}
	if _, err := p.Complete(context.Background(), nil); err != ErrNotConfigured {
		t.Fatalf("Complete err = %v; want ErrNotConfigured", err)
	}
	deltas, errs := p.Stream(context.Background(), nil)
	for range deltas {
		t.Fatal("unexpected delta")
	}
	if err := <-errs; err != ErrNotConfigured {
		t.Fatalf("Stream err = %v; want ErrNotConfigured", err)
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var gotProject, gotAuth string
	p, _ := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		gotProject = r.Header.Get("OpenAI-Project")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id":"cmpl-1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Tank looks healthy."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":42,"completion_tokens":7,"total_tokens":49}
		}`)
	})

	got, err := p.Complete(context.Background(), []Message{
		{Role: "system", Content: "You are AquaMind assistant."},
		{Role: "user", Content: "How is my tank?"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Content != "Tank looks healthy." || got.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected completion: %+v", got)
	}
	if got.Usage.TotalTokens != 49 || got.Usage.PromptTokens != 42 {
		t.Fatalf("unexpected usage: %+v", got.Usage)
	}
	if gotProject != "proj_test" {
		t.Fatalf("OpenAI-Project = %q; want proj_test", gotProject)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestOpenAI_Complete_UpstreamError(t *testing.T) {
	p, _ := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	})
	if _, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error from 429 upstream")
	}
}

func TestOpenAI_Stream(t *testing.T) {
	p, _ := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"Your ", "tank ", "is fine."}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	deltas, errs := p.Stream(context.Background(), []Message{{Role: "user", Content: "status?"}})
	var sb strings.Builder
	for d := range deltas {
		sb.WriteString(d)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream err: %v", err)
	}
	if sb.String() != "Your tank is fine." {
		t.Fatalf("assembled = %q", sb.String())
	}
}

func TestOpenAI_Stream_UpstreamError(t *testing.T) {
	p, _ := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	})
	deltas, errs := p.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}})
	for range deltas {
		t.Fatal("unexpected delta on failed open")
	}
	if err := <-errs; err == nil {
		t.Fatal("expected stream open error")
	}
}
