package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message inside a conversation. Sessions are not a separate
// table: a session is the set of turns sharing a session_id, owned by one
// user. The auto-increment ID is the ordering key; timestamps at storage
// resolution may collide.
type Turn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	SessionID string    `gorm:"size:64;not null;index" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Title     string    `gorm:"size:128" json:"-"` // set on the session's first turn only
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is one row of a user's session list.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title"`
	LastActive time.Time `json:"last_active"`
}
