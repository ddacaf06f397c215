// Assistant endpoints:
//   - POST /ai/chat              (one synchronous assistant turn)
//   - GET  /ai/chat/stream       (same turn, streamed as server-sent events)
//   - GET  /ai/conversations/:id (ordered transcript of a conversation)
//
// POST /ai/chat honours the Idempotency-Key header: a retry carrying the
// same key and conversationId is served the stored reply instead of running
// the pipeline again.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/assistant"
	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/http/middleware"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

// AssistantService defines the chat pipeline consumed by HTTP handlers.
type AssistantService interface {
	Respond(ctx context.Context, userID string, req assistant.Request) (*assistant.Reply, error)
	Stream(ctx context.Context, userID string, req assistant.Request, emit func(assistant.StreamEvent) error) error
	Transcript(ctx context.Context, id string) ([]domain.Message, error)
}

// Handlers bundles the services behind the HTTP surface. All endpoint
// methods hang off this struct so the router wires a single value.
type Handlers struct {
	authSvc AuthService
	tankSvc TankService
	asstSvc AssistantService

	// db backs idempotent chat retries; nil disables replay storage.
	db      *gorm.DB
	idemTTL time.Duration
}

// New builds the handler set. db may be nil when idempotent retries are not
// wanted; idemTTL <= 0 defaults to 24h.
func New(auth AuthService, tanks TankService, asst AssistantService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{authSvc: auth, tankSvc: tanks, asstSvc: asst, db: db, idemTTL: idemTTL}
}

// ChatRequest is the JSON payload for POST /ai/chat.
type ChatRequest struct {
	Query          string             `json:"query"`
	ConversationID string             `json:"conversationId"`
	Context        *assistant.Context `json:"context"`
}

// ChatResponse is the reply envelope for POST /ai/chat.
type ChatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ConversationResponse is returned by GET /ai/conversations/:id.
type ConversationResponse struct {
	ID       string           `json:"id"`
	Messages []domain.Message `json:"messages"`
}

// Chat handles POST /ai/chat.
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query (string) required")
		return
	}

	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if key, present := middleware.GetIdempotencyKey(c); present && h.db != nil && req.ConversationID != "" {
		if resp, found := h.storedReply(ctx, uid, req.ConversationID, key, req.Query); found {
			middleware.LoggerFrom(c).Info().
				Str("conversation_id", req.ConversationID).
				Msg("idempotent replay served from store")
			ok(c, http.StatusOK, resp)
			return
		}
	}

	reply, err := h.asstSvc.Respond(ctx, uid, assistant.Request{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Context:        req.Context,
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyQuery):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query (string) required")
		return
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Msg("assistant pipeline failed")
		fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, "AI temporarily unavailable")
		return
	}

	middleware.CountAssistantReply(reply.Source, "sync")

	// Canned replies are stateless, so there is nothing to replay.
	if key, present := middleware.GetIdempotencyKey(c); present && h.db != nil && reply.MessageID != "" {
		if _, err := repo.CreateIdempotency(ctx, h.db, uid, reply.ConversationID, key, reply.MessageID, requestFingerprint(req.Query), http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("failed to store idempotency record")
		}
	}

	ok(c, http.StatusOK, ChatResponse{Reply: reply.Reply, ConversationID: reply.ConversationID})
}

// requestFingerprint hashes the normalized query so a stored reply is only
// replayed for the question that produced it.
func requestFingerprint(query string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])
}

// storedReply resolves an idempotency record to the reply it produced. Any
// lookup failure, or a fingerprint mismatch from a reused key carrying a
// different question, means "run the pipeline normally".
func (h *Handlers) storedReply(ctx context.Context, uid, conversationID, key, query string) (*ChatResponse, bool) {
	rec, err := repo.GetIdempotency(ctx, h.db, uid, conversationID, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	if rec.RequestHash != "" && rec.RequestHash != requestFingerprint(query) {
		return nil, false
	}
	msg, err := repo.GetMessage(ctx, h.db, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return &ChatResponse{Reply: msg.Content, ConversationID: conversationID}, true
}

// ChatStream handles GET /ai/chat/stream. Input arrives as query parameters
// (EventSource cannot POST): query, conversationId, and context as a JSON
// string. Frames follow the widget's wire grammar: zero or more
// {"delta": ...} frames, then exactly one {"done": true, "conversationId": ...}
// or {"error": ...}.
func (h *Handlers) ChatStream(c *gin.Context) {
	query := c.Query("query")
	if strings.TrimSpace(query) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query (string) required")
		return
	}

	var pageCtx *assistant.Context
	if raw := c.Query("context"); strings.TrimSpace(raw) != "" {
		pageCtx = &assistant.Context{}
		if err := json.Unmarshal([]byte(raw), pageCtx); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "context must be a JSON object")
			return
		}
	}

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-transform")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	emit := func(ev assistant.StreamEvent) error {
		var frame any
		switch {
		case ev.Error != "":
			frame = gin.H{"error": ev.Error}
		case ev.Done:
			frame = gin.H{"done": true, "conversationId": ev.ConversationID}
			if ev.Source != "" {
				middleware.CountAssistantReply(ev.Source, "stream")
			}
		default:
			frame = gin.H{"delta": ev.Delta}
		}
		buf, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", buf); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err := h.asstSvc.Stream(c.Request.Context(), middleware.UserID(c), assistant.Request{
		Query:          query,
		ConversationID: c.Query("conversationId"),
		Context:        pageCtx,
	}, emit)
	if err != nil {
		// Headers are already out, so the only honest signal left is an
		// error frame.
		middleware.LoggerFrom(c).Error().Err(err).Msg("assistant stream failed")
		_ = emit(assistant.StreamEvent{Error: "AI temporarily unavailable"})
	}
}

// Conversation handles GET /ai/conversations/:id.
func (h *Handlers) Conversation(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.asstSvc.Transcript(c.Request.Context(), id)
	switch {
	case errors.Is(err, assistant.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to load conversation")
		return
	}
	ok(c, http.StatusOK, ConversationResponse{ID: id, Messages: msgs})
}
