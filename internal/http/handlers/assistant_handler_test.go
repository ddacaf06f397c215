package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/ai"
	"github.com/aquamind/go-tank-backend/internal/assistant"
	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/http/middleware"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

type scriptedProvider struct {
	reply string
	err   error
	calls int
}

func (p *scriptedProvider) Complete(_ context.Context, _ []ai.Message) (*ai.Completion, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Completion{Content: p.reply, Model: "gpt-4o-mini"}, nil
}

type scriptedStreamer struct {
	scriptedProvider
	deltas    []string
	streamErr error
}

func (p *scriptedStreamer) Stream(_ context.Context, _ []ai.Message) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, d := range p.deltas {
			out <- d
		}
		errs <- p.streamErr
	}()
	return out, errs
}

func newChatRouter(t *testing.T, p ai.Provider) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := newHandlersDB(t)
	svc := assistant.NewService(db, p, nil, "gpt-4o-mini", 4000)
	h := New(nil, nil, svc, db, time.Hour)

	r := gin.New()
	g := r.Group("/ai", asUser("u1"), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	g.POST("/chat", h.Chat)
	g.GET("/chat/stream", h.ChatStream)
	g.GET("/conversations/:id", h.Conversation)
	return r, db
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, m)
	}
	return frames
}

func TestChat_RepliesAndPersistsTranscript(t *testing.T) {
	p := &scriptedProvider{reply: "Tank looks healthy."}
	r, _ := newChatRouter(t, p)

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{
		"query":   "How is my roof tank doing?",
		"context": gin.H{"projectSummary": "2 tanks, 1 alert"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ChatResponse
	decodeBody(t, w, &resp)
	if resp.Reply != "Tank looks healthy." || resp.ConversationID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if p.calls != 1 {
		t.Fatalf("provider calls = %d", p.calls)
	}

	w = doJSON(t, r, http.MethodGet, "/ai/conversations/"+resp.ConversationID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transcript status = %d, body %s", w.Code, w.Body.String())
	}
	var conv ConversationResponse
	decodeBody(t, w, &conv)
	if conv.ID != resp.ConversationID || len(conv.Messages) != 2 {
		t.Fatalf("unexpected transcript: %+v", conv)
	}
	if conv.Messages[0].Role != domain.RoleUser || conv.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
}

func TestChat_EmptyQuery(t *testing.T) {
	r, _ := newChatRouter(t, &scriptedProvider{reply: "x"})

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"query": "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	decodeBody(t, w, &resp)
	if resp.Message != "query (string) required" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestChat_CannedShortcut(t *testing.T) {
	p := &scriptedProvider{reply: "should not be used"}
	r, db := newChatRouter(t, p)

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"query": "What is AquaMind?"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ChatResponse
	decodeBody(t, w, &resp)
	if !strings.Contains(resp.Reply, "smart water management") || resp.ConversationID != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if p.calls != 0 {
		t.Fatalf("provider calls = %d, want 0", p.calls)
	}
	var count int64
	if err := db.Model(&domain.Message{}).Count(&count).Error; err != nil || count != 0 {
		t.Fatalf("messages persisted = %d (err %v), want 0", count, err)
	}
}

func TestChat_FallbackOnModelFailure(t *testing.T) {
	p := &scriptedProvider{err: errors.New("upstream down")}
	r, db := newChatRouter(t, p)

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{
		"query":   "status?",
		"context": gin.H{"projectSummary": "2 tanks"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ChatResponse
	decodeBody(t, w, &resp)
	if !strings.Contains(resp.Reply, "AI service is temporarily unavailable") {
		t.Fatalf("reply = %q", resp.Reply)
	}

	msgs, err := repo.ListMessages(context.Background(), db, resp.ConversationID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages = %d msgs, err %v", len(msgs), err)
	}
	for _, m := range msgs {
		if m.Model != assistant.ModelFallback {
			t.Fatalf("message %s model = %q, want fallback", m.Role, m.Model)
		}
	}
}

func TestChat_IdempotentReplay(t *testing.T) {
	p := &scriptedProvider{reply: "first answer"}
	r, db := newChatRouter(t, p)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-1"}

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"query": "how full is tank A?"}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d, body %s", w.Code, w.Body.String())
	}
	var first ChatResponse
	decodeBody(t, w, &first)

	// The retry repeats the key and names the conversation it targets.
	p.reply = "second answer"
	w = doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{
		"query":          "how full is tank A?",
		"conversationId": first.ConversationID,
	}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", w.Code, w.Body.String())
	}
	var second ChatResponse
	decodeBody(t, w, &second)
	if second.Reply != first.Reply || second.ConversationID != first.ConversationID {
		t.Fatalf("retry not replayed: %+v vs %+v", second, first)
	}
	if p.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", p.calls)
	}

	msgs, err := repo.ListMessages(context.Background(), db, first.ConversationID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages = %d msgs, err %v; replay must not append", len(msgs), err)
	}

	// A different key runs the pipeline again.
	w = doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{
		"query":          "how full is tank A?",
		"conversationId": first.ConversationID,
	}, map[string]string{middleware.HeaderIdempotencyKey: "retry-2"})
	if w.Code != http.StatusOK {
		t.Fatalf("new key status = %d", w.Code)
	}
	var third ChatResponse
	decodeBody(t, w, &third)
	if third.Reply != "second answer" || p.calls != 2 {
		t.Fatalf("new key reply = %q, calls = %d", third.Reply, p.calls)
	}
}

func TestChat_ReusedKeyWithDifferentQueryNotReplayed(t *testing.T) {
	p := &scriptedProvider{reply: "answer about tank A"}
	r, _ := newChatRouter(t, p)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-1"}

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"query": "how full is tank A?"}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d, body %s", w.Code, w.Body.String())
	}
	var first ChatResponse
	decodeBody(t, w, &first)

	// Same key, same conversation, different question: the stale reply must
	// not come back.
	p.reply = "answer about tank B"
	w = doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{
		"query":          "how full is tank B?",
		"conversationId": first.ConversationID,
	}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("second status = %d, body %s", w.Code, w.Body.String())
	}
	var second ChatResponse
	decodeBody(t, w, &second)
	if second.Reply != "answer about tank B" {
		t.Fatalf("stale replay served: %q", second.Reply)
	}
	if p.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", p.calls)
	}
}

func TestChatStream_DeltasThenDone(t *testing.T) {
	p := &scriptedStreamer{deltas: []string{"Wat", "er ", "ok"}}
	r, db := newChatRouter(t, p)

	q := url.Values{"query": {"status?"}, "context": {`{"projectSummary":"2 tanks"}`}}
	w := doJSON(t, r, http.MethodGet, "/ai/chat/stream?"+q.Encode(), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatal("expected X-Accel-Buffering: no")
	}

	frames := parseSSE(t, w.Body.String())
	if len(frames) != 4 {
		t.Fatalf("frames = %d: %v", len(frames), frames)
	}
	var got strings.Builder
	for _, f := range frames[:3] {
		d, ok := f["delta"].(string)
		if !ok {
			t.Fatalf("expected delta frame, got %v", f)
		}
		got.WriteString(d)
	}
	last := frames[3]
	convID, _ := last["conversationId"].(string)
	if last["done"] != true || convID == "" {
		t.Fatalf("terminal frame = %v", last)
	}
	if got.String() != "Water ok" {
		t.Fatalf("streamed text = %q", got.String())
	}

	msgs, err := repo.ListMessages(context.Background(), db, convID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages = %d msgs, err %v", len(msgs), err)
	}
	if msgs[1].Content != "Water ok" {
		t.Fatalf("persisted reply = %q", msgs[1].Content)
	}
}

func TestChatStream_FallbackBeforeFirstDelta(t *testing.T) {
	p := &scriptedStreamer{streamErr: errors.New("connect refused")}
	r, db := newChatRouter(t, p)

	w := doJSON(t, r, http.MethodGet, "/ai/chat/stream?query=status", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	frames := parseSSE(t, w.Body.String())
	if len(frames) != 2 {
		t.Fatalf("frames = %d: %v", len(frames), frames)
	}
	delta, _ := frames[0]["delta"].(string)
	if !strings.Contains(delta, "AI service is temporarily unavailable") {
		t.Fatalf("fallback delta = %q", delta)
	}
	convID, _ := frames[1]["conversationId"].(string)
	if frames[1]["done"] != true || convID == "" {
		t.Fatalf("terminal frame = %v", frames[1])
	}

	msgs, err := repo.ListMessages(context.Background(), db, convID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages = %d msgs, err %v", len(msgs), err)
	}
	for _, m := range msgs {
		if m.Model != assistant.ModelFallback {
			t.Fatalf("message %s model = %q, want fallback", m.Role, m.Model)
		}
	}
}

func TestChatStream_ErrorAfterFirstDelta(t *testing.T) {
	p := &scriptedStreamer{deltas: []string{"partial"}, streamErr: errors.New("reset mid-stream")}
	r, _ := newChatRouter(t, p)

	w := doJSON(t, r, http.MethodGet, "/ai/chat/stream?query=status", nil, nil)
	frames := parseSSE(t, w.Body.String())
	if len(frames) != 2 {
		t.Fatalf("frames = %d: %v", len(frames), frames)
	}
	if frames[0]["delta"] != "partial" {
		t.Fatalf("first frame = %v", frames[0])
	}
	if msg, _ := frames[1]["error"].(string); msg == "" {
		t.Fatalf("terminal frame = %v, want error", frames[1])
	}
}

func TestChatStream_MissingQuery(t *testing.T) {
	r, _ := newChatRouter(t, &scriptedStreamer{})

	w := doJSON(t, r, http.MethodGet, "/ai/chat/stream", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestConversation_NotFound(t *testing.T) {
	r, _ := newChatRouter(t, &scriptedProvider{reply: "x"})

	w := doJSON(t, r, http.MethodGet, "/ai/conversations/no-such-id", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	decodeBody(t, w, &resp)
	if resp.Message != "Conversation not found" {
		t.Fatalf("message = %q", resp.Message)
	}
}
