package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamchat/internal/ai"
	"teamchat/internal/model"
)

var (
	ErrMessageEmpty = errors.New("message content is empty")
	ErrUnknownMode  = errors.New("unknown chat mode")
)

const (
	// ModeRAG answers with the language model over retrieved context.
	ModeRAG = "rag"
	// ModeSearch skips generation and returns the retrieved chunks directly.
	ModeSearch = "search"

	noAccessMessage = "You do not currently have access to any documents. " +
		"Ask an administrator to grant your team access before chatting."
	noMatchMessage = "None of the selected documents are accessible to your account."
)

// Stream event types, in emission order: a session id (once, for new
// sessions), text deltas, supporting sources, then done. Errors are
// surfaced by the transport as a terminal event.
const (
	EventSession = "session"
	EventDelta   = "delta"
	EventSources = "sources"
	EventDone    = "done"
)

type StreamEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Delta     string         `json:"delta,omitempty"`
	Sources   []ai.SourceRef `json:"sources,omitempty"`
}

// Generator is the retrieval/generation backend as the orchestrator sees it.
type Generator interface {
	StreamChat(ctx context.Context, transcript []ai.ChatMessage, scope model.ContextScope, onDelta func(string) error) ([]ai.SourceRef, error)
	Retrieve(ctx context.Context, query string, scope model.ContextScope, limit int) ([]ai.SourceRef, error)
}

// AuditPublisher forwards lifecycle events to the audit pipeline.
type AuditPublisher interface {
	Publish(ctx context.Context, event model.AuditEvent) error
}

type StreamInput struct {
	Identity  Identity
	SessionID string
	Mode      string
	Content   string
	DocIDs    []string
}

// ChatService drives one chat request end to end: session resolution, access
// narrowing, durable persistence of both turns, and live forwarding of the
// backend's delta stream.
type ChatService struct {
	ledger     *LedgerService
	access     *AccessService
	generator  Generator
	publisher  AuditPublisher
	logger     *zap.Logger
	maxContext int
	searchTopK int
}

func NewChatService(
	ledger *LedgerService,
	access *AccessService,
	generator Generator,
	publisher AuditPublisher,
	logger *zap.Logger,
	maxContext int,
	searchTopK int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	if searchTopK <= 0 {
		searchTopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		ledger:     ledger,
		access:     access,
		generator:  generator,
		publisher:  publisher,
		logger:     logger,
		maxContext: maxContext,
		searchTopK: searchTopK,
	}
}

// Stream runs the full request flow, invoking onEvent for every stream event
// in order. The user's turn is persisted before any generation cost is
// incurred; the assistant's turn is persisted exactly once after the delta
// stream ends, even when the caller has gone away or the backend failed
// mid-stream (the partial accumulation is what gets saved). The returned
// error, if any, must be surfaced to the caller as a terminal event by the
// transport.
func (s *ChatService) Stream(ctx context.Context, input StreamInput, onEvent func(StreamEvent) error) error {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return ErrMessageEmpty
	}
	mode := input.Mode
	if mode == "" {
		mode = ModeRAG
	}
	if mode != ModeRAG && mode != ModeSearch {
		return ErrUnknownMode
	}

	sessionID := input.SessionID
	firstTurn := false
	if sessionID == "" {
		sessionID = uuid.NewString()
		firstTurn = true
		if err := onEvent(StreamEvent{Type: EventSession, SessionID: sessionID}); err != nil {
			return err
		}
	}

	log := s.logger.With(
		zap.String("component", "chat"),
		zap.Uint("user_id", input.Identity.UserID),
		zap.String("session_id", sessionID),
	)

	scope, err := s.access.ResolveContext(input.Identity, input.DocIDs)
	if err != nil {
		return fmt.Errorf("resolve access scope failed: %w", err)
	}

	// Writers on one session id are serialized from the user-turn persist
	// through the assistant-turn persist so racing requests cannot
	// interleave.
	unlock := s.ledger.LockSession(sessionID)
	defer unlock()

	// Persistence must survive the caller disconnecting mid-stream.
	persistCtx := context.WithoutCancel(ctx)

	if _, err := s.ledger.AppendTurn(persistCtx, input.Identity.UserID, sessionID, model.RoleUser, content, firstTurn); err != nil {
		return fmt.Errorf("persist user turn failed: %w", err)
	}

	if scope.Empty() {
		denial := noAccessMessage
		if len(input.DocIDs) > 0 {
			denial = noMatchMessage
		}
		log.Info("chat denied: no accessible documents", zap.Int("requested_docs", len(input.DocIDs)))
		if err := onEvent(StreamEvent{Type: EventDelta, Delta: denial}); err != nil {
			log.Warn("forward denial failed", zap.Error(err))
		}
		if _, err := s.ledger.AppendTurn(persistCtx, input.Identity.UserID, sessionID, model.RoleAssistant, denial, false); err != nil {
			return fmt.Errorf("persist denial turn failed: %w", err)
		}
		return onEvent(StreamEvent{Type: EventDone, SessionID: sessionID})
	}

	var answer string
	var sources []ai.SourceRef
	var streamErr error

	switch mode {
	case ModeSearch:
		answer, sources, streamErr = s.runSearch(ctx, content, scope, onEvent)
	default:
		answer, sources, streamErr = s.runGeneration(ctx, input.Identity.UserID, sessionID, scope, onEvent)
	}

	if streamErr != nil {
		log.Warn("stream interrupted", zap.Error(streamErr), zap.Int("partial_len", len(answer)))
	}

	// Exactly one assistant turn per request, whatever happened upstream.
	if _, err := s.ledger.AppendTurn(persistCtx, input.Identity.UserID, sessionID, model.RoleAssistant, answer, false); err != nil {
		if streamErr != nil {
			return errors.Join(streamErr, fmt.Errorf("persist assistant turn failed: %w", err))
		}
		return fmt.Errorf("persist assistant turn failed: %w", err)
	}
	if streamErr != nil {
		return streamErr
	}

	if len(sources) > 0 {
		if err := onEvent(StreamEvent{Type: EventSources, Sources: sources}); err != nil {
			log.Warn("forward sources failed", zap.Error(err))
		}
	}
	s.audit(persistCtx, input.Identity.Username, "chat."+mode, sessionID)
	return onEvent(StreamEvent{Type: EventDone, SessionID: sessionID})
}

// runGeneration invokes the language model over the session transcript and
// forwards each delta as produced, accumulating the full response.
func (s *ChatService) runGeneration(
	ctx context.Context,
	userID uint,
	sessionID string,
	scope model.ContextScope,
	onEvent func(StreamEvent) error,
) (string, []ai.SourceRef, error) {
	turns, err := s.ledger.GetTranscript(ctx, userID, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("load transcript failed: %w", err)
	}
	if len(turns) > s.maxContext {
		turns = turns[len(turns)-s.maxContext:]
	}
	transcript := make([]ai.ChatMessage, 0, len(turns))
	for _, t := range turns {
		transcript = append(transcript, ai.ChatMessage{Role: t.Role, Content: t.Content})
	}

	var full strings.Builder
	sources, err := s.generator.StreamChat(ctx, transcript, scope, func(delta string) error {
		full.WriteString(delta)
		return onEvent(StreamEvent{Type: EventDelta, Delta: delta})
	})
	if err != nil {
		return full.String(), sources, fmt.Errorf("generation backend failed: %w", err)
	}
	return full.String(), sources, nil
}

// runSearch retrieves relevant chunks and formats them as the answer, with
// no language-model call.
func (s *ChatService) runSearch(
	ctx context.Context,
	query string,
	scope model.ContextScope,
	onEvent func(StreamEvent) error,
) (string, []ai.SourceRef, error) {
	sources, err := s.generator.Retrieve(ctx, query, scope, s.searchTopK)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval backend failed: %w", err)
	}

	answer := FormatSearchResults(sources)
	if err := onEvent(StreamEvent{Type: EventDelta, Delta: answer}); err != nil {
		return answer, sources, nil
	}
	return answer, sources, nil
}

// FormatSearchResults renders retrieved chunks as a numbered list of
// file/page headers with excerpts.
func FormatSearchResults(sources []ai.SourceRef) string {
	if len(sources) == 0 {
		return "No relevant passages were found in the accessible documents."
	}
	parts := make([]string, 0, len(sources))
	for i, src := range sources {
		parts = append(parts, fmt.Sprintf("%d. **%s (page %s)**\n%s", i+1, src.File, src.Page, src.Text))
	}
	return strings.Join(parts, "\n\n\n")
}

func (s *ChatService) audit(ctx context.Context, actor, action, sessionID string) {
	if s.publisher == nil {
		return
	}
	event := model.AuditEvent{
		Actor:     actor,
		Action:    action,
		SessionID: sessionID,
		At:        time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish audit event failed",
			zap.String("component", "chat"),
			zap.String("action", action),
			zap.Error(err))
	}
}
