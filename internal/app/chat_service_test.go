package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teamchat/internal/ai"
	"teamchat/internal/model"
	"teamchat/internal/repository"
)

type fakeGenerator struct {
	deltas    []string
	sources   []ai.SourceRef
	failAfter int // deliver this many deltas, then fail; -1 disables
	retrieved []ai.SourceRef

	chatCalls     int
	retrieveCalls int
	gotTranscript []ai.ChatMessage
	gotScope      model.ContextScope
	gotQuery      string
	gotLimit      int
}

var errBackendDown = errors.New("backend down")

func (f *fakeGenerator) StreamChat(_ context.Context, transcript []ai.ChatMessage, scope model.ContextScope, onDelta func(string) error) ([]ai.SourceRef, error) {
	f.chatCalls++
	f.gotTranscript = transcript
	f.gotScope = scope
	for i, delta := range f.deltas {
		if f.failAfter >= 0 && i == f.failAfter {
			return f.sources, errBackendDown
		}
		if err := onDelta(delta); err != nil {
			return f.sources, err
		}
	}
	return f.sources, nil
}

func (f *fakeGenerator) Retrieve(_ context.Context, query string, scope model.ContextScope, limit int) ([]ai.SourceRef, error) {
	f.retrieveCalls++
	f.gotQuery = query
	f.gotScope = scope
	f.gotLimit = limit
	return f.retrieved, nil
}

type fakePublisher struct {
	events []model.AuditEvent
}

func (f *fakePublisher) Publish(_ context.Context, event model.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

type chatFixture struct {
	svc       *ChatService
	ledger    *LedgerService
	generator *fakeGenerator
	publisher *fakePublisher
	docTeams  *repository.DocumentTeamRepository
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := openTestDB(t)
	ledger := NewLedgerService(repository.NewTurnRepository(db), nil)
	docTeams := repository.NewDocumentTeamRepository(db)
	generator := &fakeGenerator{failAfter: -1}
	publisher := &fakePublisher{}
	svc := NewChatService(ledger, NewAccessService(docTeams), generator, publisher, zap.NewNop(), 20, 5)
	return &chatFixture{svc: svc, ledger: ledger, generator: generator, publisher: publisher, docTeams: docTeams}
}

func collectEvents(events *[]StreamEvent) func(StreamEvent) error {
	return func(e StreamEvent) error {
		*events = append(*events, e)
		return nil
	}
}

func adminIdentity() Identity {
	return Identity{UserID: 1, Username: "admin", Role: model.RoleAdmin}
}

func TestStreamNewSessionEventOrder(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.deltas = []string{"Hel", "lo"}
	fx.generator.sources = []ai.SourceRef{{File: "guide.pdf", Page: "3", Text: "…"}}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity: adminIdentity(),
		Content:  "How do I reset my password today please",
	}, collectEvents(&events))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, EventSession, events[0].Type)
	sessionID := events[0].SessionID
	require.NotEmpty(t, sessionID)

	assert.Equal(t, EventDelta, events[1].Type)
	assert.Equal(t, "Hel", events[1].Delta)
	assert.Equal(t, EventDelta, events[2].Type)
	assert.Equal(t, "lo", events[2].Delta)

	assert.Equal(t, EventSources, events[len(events)-2].Type)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, sessionID, events[len(events)-1].SessionID)

	turns, err := fx.ledger.GetTranscript(context.Background(), 1, sessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "How do I reset my password today please", turns[0].Content)
	assert.Equal(t, "How do I reset my password", turns[0].Title)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello", turns[1].Content)
}

func TestStreamExistingSessionHasNoSessionEvent(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.deltas = []string{"hi"}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  adminIdentity(),
		SessionID: "existing",
		Content:   "hello again",
	}, collectEvents(&events))
	require.NoError(t, err)

	for _, e := range events {
		assert.NotEqual(t, EventSession, e.Type)
	}
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, "existing", events[len(events)-1].SessionID)
}

func TestStreamTranscriptSentToBackend(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.deltas = []string{"a1"}
	ctx := context.Background()

	_, err := fx.ledger.AppendTurn(ctx, 1, "s1", model.RoleUser, "earlier question", true)
	require.NoError(t, err)
	_, err = fx.ledger.AppendTurn(ctx, 1, "s1", model.RoleAssistant, "earlier answer", false)
	require.NoError(t, err)

	var events []StreamEvent
	err = fx.svc.Stream(ctx, StreamInput{
		Identity:  adminIdentity(),
		SessionID: "s1",
		Content:   "new question",
	}, collectEvents(&events))
	require.NoError(t, err)

	require.Len(t, fx.generator.gotTranscript, 3)
	assert.Equal(t, "earlier question", fx.generator.gotTranscript[0].Content)
	assert.Equal(t, "new question", fx.generator.gotTranscript[2].Content)
	assert.True(t, fx.generator.gotScope.All)
}

func TestStreamContextWindowCapped(t *testing.T) {
	fx := newChatFixture(t)
	fx.svc.maxContext = 2
	fx.generator.deltas = []string{"ok"}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := fx.ledger.AppendTurn(ctx, 1, "s1", model.RoleUser, fmt.Sprintf("q%d", i), i == 0)
		require.NoError(t, err)
	}

	var events []StreamEvent
	err := fx.svc.Stream(ctx, StreamInput{
		Identity:  adminIdentity(),
		SessionID: "s1",
		Content:   "latest",
	}, collectEvents(&events))
	require.NoError(t, err)

	require.Len(t, fx.generator.gotTranscript, 2)
	assert.Equal(t, "latest", fx.generator.gotTranscript[1].Content)
}

func TestStreamDeniedWithoutTeams(t *testing.T) {
	fx := newChatFixture(t)
	member := Identity{UserID: 2, Username: "alice", Role: model.RoleMember}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  member,
		SessionID: "s1",
		Content:   "anything in the docs?",
	}, collectEvents(&events))
	require.NoError(t, err)

	assert.Zero(t, fx.generator.chatCalls)
	assert.Zero(t, fx.generator.retrieveCalls)

	require.Len(t, events, 2)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, noAccessMessage, events[0].Delta)
	assert.Equal(t, EventDone, events[1].Type)

	turns, err := fx.ledger.GetTranscript(context.Background(), 2, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, noAccessMessage, turns[1].Content)
}

func TestStreamDeniedDisjointSelection(t *testing.T) {
	fx := newChatFixture(t)
	require.NoError(t, fx.docTeams.ReplaceForDoc("d-hr", []string{"hr"}))
	member := Identity{UserID: 2, Username: "alice", Role: model.RoleMember, Teams: []string{"sales"}}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  member,
		SessionID: "s1",
		Content:   "summarize it",
		DocIDs:    []string{"d-hr"},
	}, collectEvents(&events))
	require.NoError(t, err)

	assert.Zero(t, fx.generator.chatCalls)
	require.NotEmpty(t, events)
	assert.Equal(t, noMatchMessage, events[0].Delta)
}

func TestStreamPersistsPartialOnBackendFailure(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.deltas = []string{"par", "tial", "never sent"}
	fx.generator.failAfter = 2

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  adminIdentity(),
		SessionID: "s1",
		Content:   "question",
	}, collectEvents(&events))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendDown)

	turns, terr := fx.ledger.GetTranscript(context.Background(), 1, "s1")
	require.NoError(t, terr)
	require.Len(t, turns, 2)
	assert.Equal(t, "partial", turns[1].Content)

	for _, e := range events {
		assert.NotEqual(t, EventDone, e.Type)
	}
}

func TestStreamSearchMode(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.retrieved = []ai.SourceRef{
		{File: "handbook.pdf", Page: "12", Text: "Vacation policy text."},
		{File: "handbook.pdf", Page: "14", Text: "Sick leave text."},
	}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  adminIdentity(),
		SessionID: "s1",
		Mode:      ModeSearch,
		Content:   "vacation policy",
	}, collectEvents(&events))
	require.NoError(t, err)

	assert.Zero(t, fx.generator.chatCalls)
	assert.Equal(t, 1, fx.generator.retrieveCalls)
	assert.Equal(t, "vacation policy", fx.generator.gotQuery)
	assert.Equal(t, 5, fx.generator.gotLimit)

	want := FormatSearchResults(fx.generator.retrieved)
	assert.Equal(t, want, events[0].Delta)

	turns, err := fx.ledger.GetTranscript(context.Background(), 1, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, want, turns[1].Content)
}

func TestStreamInputValidation(t *testing.T) {
	fx := newChatFixture(t)

	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity: adminIdentity(),
		Content:  "   ",
	}, collectEvents(&[]StreamEvent{}))
	assert.ErrorIs(t, err, ErrMessageEmpty)

	err = fx.svc.Stream(context.Background(), StreamInput{
		Identity: adminIdentity(),
		Mode:     "summarize",
		Content:  "hello",
	}, collectEvents(&[]StreamEvent{}))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestStreamAuditEventPublished(t *testing.T) {
	fx := newChatFixture(t)
	fx.generator.deltas = []string{"ok"}

	var events []StreamEvent
	err := fx.svc.Stream(context.Background(), StreamInput{
		Identity:  adminIdentity(),
		SessionID: "s1",
		Content:   "hello",
	}, collectEvents(&events))
	require.NoError(t, err)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, "chat.rag", fx.publisher.events[0].Action)
	assert.Equal(t, "admin", fx.publisher.events[0].Actor)
	assert.Equal(t, "s1", fx.publisher.events[0].SessionID)
}

func TestFormatSearchResults(t *testing.T) {
	formatted := FormatSearchResults([]ai.SourceRef{
		{File: "a.pdf", Page: "1", Text: "alpha"},
		{File: "b.pdf", Page: "2", Text: "beta"},
	})
	assert.Equal(t, "1. **a.pdf (page 1)**\nalpha\n\n\n2. **b.pdf (page 2)**\nbeta", formatted)

	assert.NotEmpty(t, FormatSearchResults(nil))
}
