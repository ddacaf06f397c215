package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/ai"
	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/repo"
)

// PromptFor renders the system instruction for a project name.
func PromptFor(project string) string {
	return "You are " + project + " assistant. Answer concisely and refer to the app data when useful (tanks, alerts, consumption). Use provided page content to tailor answers."
}

// SystemPrompt is the default instruction sent as the first model turn.
var SystemPrompt = PromptFor("AquaMind")

// ModelFallback tags turns persisted by the heuristic fallback path.
const ModelFallback = "fallback"

// SourceModel tags replies produced by the configured AI provider.
const SourceModel = "model"

// DefaultConversationTitle is the placeholder applied to new conversations
// until the first user turn produces an auto-title.
const DefaultConversationTitle = "AquaMind Chat"

// ErrEmptyQuery rejects requests whose query is missing or blank.
var ErrEmptyQuery = errors.New("query (string) required")

// ErrConversationNotFound signals a transcript read for an unknown id.
var ErrConversationNotFound = errors.New("conversation not found")

// Request is one inbound assistant turn.
type Request struct {
	Query          string
	ConversationID string
	Context        *Context
}

// Reply is the caller-visible outcome of a turn. Source distinguishes the
// canned shortcut, a real completion, and the local fallback.
type Reply struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId,omitempty"`
	Source         string `json:"-"`
	MessageID      string `json:"-"` // assistant turn id, used for idempotent replays
}

// StreamEvent is one frame of the streaming variant. Exactly one of Delta,
// Done or Error is meaningful per event; Source accompanies Done so callers
// can record how the reply was produced.
type StreamEvent struct {
	Delta          string
	Done           bool
	ConversationID string
	Error          string
	Source         string
}

// Service runs the assistant pipeline: resolve conversation, persist the
// user turn, call the model, persist the reply, audit, respond. Any model
// failure degrades to a deterministic local summary so the caller always
// gets a reply while persistence is healthy.
type Service struct {
	DB       *gorm.DB
	Provider ai.Provider
	Streamer ai.StreamProvider // nil disables streaming upgrades
	Audit    AuditSink

	Model       string // tag recorded on persisted turns
	Prompt      string // overrides SystemPrompt when set
	PageMax     int    // page-content clip budget for Context.Render
	TitleMaxLen int
	TitleLocale language.Tag
}

// logFor returns the request-scoped logger when the HTTP layer attached one
// to ctx, else the global logger. Fallback and audit warnings must never be
// dropped just because a call arrived outside a request.
func logFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

func (s *Service) systemPrompt() string {
	if s.Prompt != "" {
		return s.Prompt
	}
	return SystemPrompt
}

// NewService wires a Service with sensible titling defaults.
func NewService(db *gorm.DB, p ai.Provider, audit AuditSink, model string, pageMax int) *Service {
	s := &Service{
		DB:          db,
		Provider:    p,
		Audit:       audit,
		Model:       model,
		PageMax:     pageMax,
		TitleMaxLen: 60,
		TitleLocale: language.Und,
	}
	if sp, ok := p.(ai.StreamProvider); ok {
		s.Streamer = sp
	}
	if s.Audit == nil {
		s.Audit = NopAudit{}
	}
	return s
}

// Respond executes one synchronous turn. The returned error is non-nil only
// when persistence itself is unavailable; model failures are absorbed by the
// fallback path and reported as a successful Reply.
func (s *Service) Respond(ctx context.Context, userID string, req Request) (*Reply, error) {
	tr := otel.Tracer("assistant/Service")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	// Cost-saving shortcut: common product questions never reach the model
	// and are never persisted.
	if text, ok := BuiltinReply(query); ok {
		return &Reply{Reply: text, ConversationID: req.ConversationID, Source: SourceCanned}, nil
	}

	conv, err := s.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, query, s.Model, 0)
	if err != nil {
		return nil, err
	}
	s.autoTitle(ctx, conv, query)

	userContent := req.Context.Render(s.PageMax) + "\nUser question: " + query
	msgs := []ai.Message{
		{Role: domain.RoleSystem, Content: s.systemPrompt()},
		{Role: domain.RoleUser, Content: userContent},
	}

	comp, err := s.Provider.Complete(ctx, msgs)
	if err != nil {
		logFor(ctx).Warn().Err(err).Str("conversation_id", conv.ID).Msg("model call failed, serving fallback")
		return s.fallback(ctx, conv, req.Context, userMsg)
	}

	reply := comp.Content
	if reply == "" {
		reply = "Sorry, I couldn't produce an answer."
	}
	asstMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleAssistant, reply, comp.Model, comp.Usage.CompletionTokens)
	if err != nil {
		return nil, err
	}
	_ = repo.TouchConversation(s.DB.WithContext(ctx), conv.ID)

	s.audit(ctx, userContent, reply, comp)

	return &Reply{Reply: reply, ConversationID: conv.ID, Source: SourceModel, MessageID: asstMsg.ID}, nil
}

// Stream executes the streaming variant, pushing events through emit. The
// sequence is zero or more Delta events followed by exactly one terminal
// event (Done or Error). A model failure before the first delta degrades to
// the fallback reply, emitted as a single delta; after the first delta the
// only honest option is an Error frame.
func (s *Service) Stream(ctx context.Context, userID string, req Request, emit func(StreamEvent) error) error {
	tr := otel.Tracer("assistant/Service")
	ctx, span := tr.Start(ctx, "Stream",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ErrEmptyQuery
	}
	if s.Streamer == nil {
		return s.streamViaFallback(ctx, userID, req, emit)
	}

	conv, err := s.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return err
	}
	userMsg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, query, s.Model, 0)
	if err != nil {
		return err
	}
	s.autoTitle(ctx, conv, query)

	userContent := req.Context.Render(s.PageMax) + "\nUser question: " + query
	msgs := []ai.Message{
		{Role: domain.RoleSystem, Content: s.systemPrompt()},
		{Role: domain.RoleUser, Content: userContent},
	}

	deltas, errs := s.Streamer.Stream(ctx, msgs)
	var full strings.Builder
	for d := range deltas {
		full.WriteString(d)
		if err := emit(StreamEvent{Delta: d}); err != nil {
			return err
		}
	}
	if serr := <-errs; serr != nil {
		if full.Len() == 0 {
			logFor(ctx).Warn().Err(serr).Str("conversation_id", conv.ID).Msg("stream open failed, serving fallback")
			return s.emitFallback(ctx, conv, req.Context, userMsg, emit)
		}
		logFor(ctx).Warn().Err(serr).Str("conversation_id", conv.ID).Msg("stream aborted mid-reply")
		return emit(StreamEvent{Error: serr.Error()})
	}

	reply := full.String()
	if _, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleAssistant, reply, s.Model, 0); err != nil {
		return emit(StreamEvent{Error: "failed to persist reply"})
	}
	_ = repo.TouchConversation(s.DB.WithContext(ctx), conv.ID)
	s.audit(ctx, userContent, reply, &ai.Completion{Content: reply, Model: s.Model})

	return emit(StreamEvent{Done: true, ConversationID: conv.ID, Source: SourceModel})
}

// Transcript returns the ordered messages of a conversation, or
// ErrConversationNotFound when it has no messages at all.
func (s *Service) Transcript(ctx context.Context, id string) ([]domain.Message, error) {
	msgs, err := repo.ListMessages(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrConversationNotFound
	}
	return msgs, nil
}

// streamViaFallback serves the streaming surface when no stream-capable
// provider is wired: one delta carrying the whole (fallback) reply.
func (s *Service) streamViaFallback(ctx context.Context, userID string, req Request, emit func(StreamEvent) error) error {
	conv, err := s.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return err
	}
	if _, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleUser, strings.TrimSpace(req.Query), ModelFallback, 0); err != nil {
		return err
	}
	return s.emitFallback(ctx, conv, req.Context, nil, emit)
}

// fallback persists the deterministic local reply and returns it with
// success. The user turn is already durable by the time any caller reaches
// this path; it is retagged so the degraded exchange is recognizable in
// the transcript.
func (s *Service) fallback(ctx context.Context, conv *domain.Conversation, pageCtx *Context, userMsg *domain.Message) (*Reply, error) {
	if userMsg != nil && userMsg.Model != ModelFallback {
		_ = s.DB.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", userMsg.ID).Update("model", ModelFallback).Error
	}
	text := pageCtx.FallbackSummary()
	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), conv.ID, domain.RoleAssistant, text, ModelFallback, 0)
	if err != nil {
		return nil, err
	}
	_ = repo.TouchConversation(s.DB.WithContext(ctx), conv.ID)
	return &Reply{Reply: text, ConversationID: conv.ID, Source: ModelFallback, MessageID: msg.ID}, nil
}

func (s *Service) emitFallback(ctx context.Context, conv *domain.Conversation, pageCtx *Context, userMsg *domain.Message, emit func(StreamEvent) error) error {
	reply, err := s.fallback(ctx, conv, pageCtx, userMsg)
	if err != nil {
		return emit(StreamEvent{Error: "AI temporarily unavailable"})
	}
	if err := emit(StreamEvent{Delta: reply.Reply}); err != nil {
		return err
	}
	return emit(StreamEvent{Done: true, ConversationID: conv.ID, Source: ModelFallback})
}

// resolveConversation looks up the optional id; lookup failures of any kind
// are treated as "not found" and a fresh conversation is created.
func (s *Service) resolveConversation(ctx context.Context, userID, id string) (*domain.Conversation, error) {
	if strings.TrimSpace(id) != "" {
		if conv, err := repo.GetConversation(ctx, s.DB, id); err == nil {
			return conv, nil
		}
	}
	return repo.CreateConversation(ctx, s.DB, userID, DefaultConversationTitle, s.Model)
}

// audit records the request/response pair best-effort.
func (s *Service) audit(ctx context.Context, userContent, reply string, comp *ai.Completion) {
	reqJSON, _ := json.Marshal(map[string]string{"systemPrompt": s.systemPrompt(), "userContent": userContent})
	respJSON, _ := json.Marshal(map[string]any{"reply": reply, "usage": comp.Usage})
	s.Audit.Record(ctx, &domain.AuditLog{
		Request:    string(reqJSON),
		Response:   string(respJSON),
		Model:      comp.Model,
		TokensUsed: comp.Usage.TotalTokens,
	})
}

// autoTitle replaces the placeholder title with a compact form of the first
// user prompt. Failures are ignored; the placeholder is fine.
func (s *Service) autoTitle(ctx context.Context, conv *domain.Conversation, prompt string) {
	if !isPlaceholderTitle(conv.Title) {
		return
	}
	gen := s.titleFromPrompt(prompt)
	if gen == "" {
		return
	}
	if err := repo.UpdateConversationTitle(ctx, s.DB, conv.ID, gen); err == nil {
		conv.Title = gen
	}
}

func isPlaceholderTitle(t string) bool {
	t = strings.TrimSpace(strings.ToLower(t))
	return t == "" || t == strings.ToLower(DefaultConversationTitle)
}

// titleFromPrompt derives a concise title: up to eight title-cased content
// words from the prompt, clipped to TitleMaxLen runes.
func (s *Service) titleFromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	locale := s.TitleLocale
	if locale == language.Und {
		locale = language.English
	}
	caser := cases.Title(locale)
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	title := strings.Join(out, " ")
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		title = string([]rune(title)[:max])
	}
	return title
}

// titleWordRE extracts Unicode letters with optional trailing digits.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}
