package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"teamchat/internal/model"
)

// TranscriptCache keeps session transcripts in Redis for a short TTL.
// Entries are keyed by owner and session together: two users reading the
// same session id never share an entry. A dirty marker written on every
// append suppresses repopulation while a write is in flight, so readers
// never cache a half-written conversation.
type TranscriptCache struct {
	client         *redisv9.Client
	transcriptTTL  time.Duration
	dirtyMarkerTTL time.Duration
}

func NewTranscriptCache(client *redisv9.Client, transcriptTTL, dirtyMarkerTTL time.Duration) *TranscriptCache {
	if transcriptTTL <= 0 {
		transcriptTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &TranscriptCache{
		client:         client,
		transcriptTTL:  transcriptTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *TranscriptCache) GetTranscript(ctx context.Context, userID uint, sessionID string) ([]model.Turn, bool, error) {
	raw, err := c.client.Get(ctx, c.transcriptKey(userID, sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get transcript failed: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached transcript failed: %w", err)
	}
	return turns, true, nil
}

func (c *TranscriptCache) SetTranscript(ctx context.Context, userID uint, sessionID string, turns []model.Turn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal transcript cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.transcriptKey(userID, sessionID), payload, c.transcriptTTL).Err(); err != nil {
		return fmt.Errorf("redis set transcript failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) DeleteTranscript(ctx context.Context, userID uint, sessionID string) error {
	if err := c.client.Del(ctx, c.transcriptKey(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete transcript failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) MarkDirty(ctx context.Context, userID uint, sessionID string) error {
	if err := c.client.Set(ctx, c.dirtyKey(userID, sessionID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) IsDirty(ctx context.Context, userID uint, sessionID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *TranscriptCache) transcriptKey(userID uint, sessionID string) string {
	return fmt.Sprintf("chat:transcript:%d:%s", userID, sessionID)
}

func (c *TranscriptCache) dirtyKey(userID uint, sessionID string) string {
	return fmt.Sprintf("chat:transcript:dirty:%d:%s", userID, sessionID)
}
