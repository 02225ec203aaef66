package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"teamchat/internal/model"
	"teamchat/internal/repository"
)

const (
	// UntitledSessionTitle is used when the first turn is empty or not
	// user-authored.
	UntitledSessionTitle = "Untitled Chat"

	titleMaxWords = 6
	titleMaxRunes = 128
)

// TranscriptCache keeps recently read transcripts out of the store's hot
// path. Entries are identified by owner and session together so a non-owner
// reading a session id can never shadow the owner's view. All methods are
// best-effort: the ledger tolerates a nil cache and swallows cache errors.
type TranscriptCache interface {
	GetTranscript(ctx context.Context, userID uint, sessionID string) ([]model.Turn, bool, error)
	SetTranscript(ctx context.Context, userID uint, sessionID string, turns []model.Turn) error
	DeleteTranscript(ctx context.Context, userID uint, sessionID string) error
	MarkDirty(ctx context.Context, userID uint, sessionID string) error
	IsDirty(ctx context.Context, userID uint, sessionID string) (bool, error)
}

// LedgerService owns session and turn rows: it appends turns, derives
// session titles, and reconstructs ordered listings and transcripts.
type LedgerService struct {
	turnRepo *repository.TurnRepository
	cache    TranscriptCache

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewLedgerService(turnRepo *repository.TurnRepository, cache TranscriptCache) *LedgerService {
	return &LedgerService{
		turnRepo: turnRepo,
		cache:    cache,
		locks:    map[string]*sessionLock{},
	}
}

// LockSession serializes writers on one session id. The returned release
// function must be called; the lock entry is dropped once no request holds
// or awaits it.
func (s *LedgerService) LockSession(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// AppendTurn inserts one turn. When firstTurn is set the session's title is
// derived from this turn and stored with it; later appends never touch it.
func (s *LedgerService) AppendTurn(ctx context.Context, userID uint, sessionID, role, content string, firstTurn bool) (*model.Turn, error) {
	if userID == 0 || sessionID == "" {
		return nil, ErrInvalidInput
	}
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, ErrInvalidInput
	}

	turn := &model.Turn{
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if firstTurn {
		turn.Title = DeriveSessionTitle(role, content)
	}
	if err := s.turnRepo.Create(turn); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.MarkDirty(ctx, userID, sessionID)
		_ = s.cache.DeleteTranscript(ctx, userID, sessionID)
	}
	return turn, nil
}

// ListSessions returns one summary per session, newest activity first.
func (s *LedgerService) ListSessions(ctx context.Context, userID uint) ([]model.SessionSummary, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	summaries, err := s.turnRepo.SessionSummaries(userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		// Sessions continued under a caller-supplied id never had a first
		// turn flagged, so no stored title exists.
		if summaries[i].Title == "" {
			summaries[i].Title = UntitledSessionTitle
		}
	}
	return summaries, nil
}

// GetTranscript returns the session's turns in insertion order. An unknown
// session id yields an empty transcript, not an error: absence is a normal
// state for a new conversation.
func (s *LedgerService) GetTranscript(ctx context.Context, userID uint, sessionID string) ([]model.Turn, error) {
	if userID == 0 || sessionID == "" {
		return nil, ErrInvalidInput
	}

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, userID, sessionID); err == nil && !dirty {
			if cached, hit, err := s.cache.GetTranscript(ctx, userID, sessionID); err == nil && hit {
				return cached, nil
			}
		}
	}

	turns, err := s.turnRepo.ListBySession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, userID, sessionID); err == nil && !dirty {
			_ = s.cache.SetTranscript(ctx, userID, sessionID, turns)
		}
	}
	return turns, nil
}

// DeriveSessionTitle computes a session title from its first turn: the
// leading words of a user-authored turn, or a fixed placeholder when the
// turn is empty or assistant-authored. The result is deterministic and never
// recomputed.
func DeriveSessionTitle(role, content string) string {
	content = strings.TrimSpace(content)
	if role != model.RoleUser || content == "" {
		return UntitledSessionTitle
	}
	words := strings.Fields(content)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	if runes := []rune(title); len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes])
	}
	return title
}
