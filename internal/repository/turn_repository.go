package repository

import (
	"fmt"

	"gorm.io/gorm"

	"teamchat/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(turn *model.Turn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

// ListBySession returns the session's turns in insertion order. The primary
// key, not the timestamp, is the ordering key: two turns written within the
// same clock tick still come back in write order.
func (r *TurnRepository) ListBySession(userID uint, sessionID string) ([]model.Turn, error) {
	var turns []model.Turn
	if err := r.db.Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

// SessionSummaries returns one row per session, titled by its first turn and
// ordered by most recent activity. Insertion sequence breaks timestamp ties.
func (r *TurnRepository) SessionSummaries(userID uint) ([]model.SessionSummary, error) {
	var rows []model.SessionSummary
	query := `
		SELECT t.session_id,
		       (SELECT f.title FROM turns f
		        WHERE f.session_id = t.session_id AND f.user_id = ?
		        ORDER BY f.id ASC LIMIT 1) AS title,
		       MAX(t.created_at) AS last_active
		FROM turns t
		WHERE t.user_id = ?
		GROUP BY t.session_id
		ORDER BY MAX(t.created_at) DESC, MAX(t.id) DESC`
	if err := r.db.Raw(query, userID, userID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return rows, nil
}
