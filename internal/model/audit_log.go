package model

import "time"

// AuditEvent is the payload published to the audit queue.
type AuditEvent struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	Detail    string    `json:"detail"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// AuditLog is the persisted form of an AuditEvent.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"size:64;not null;index" json:"actor"`
	Action    string    `gorm:"size:64;not null" json:"action"`
	Entity    string    `gorm:"size:128" json:"entity"`
	Detail    string    `gorm:"type:text" json:"detail"`
	SessionID string    `gorm:"size:64;index" json:"session_id"`
	At        time.Time `json:"at"`
	CreatedAt time.Time `json:"created_at"`
}
