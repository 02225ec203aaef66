package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	// DefaultAdminUsername is the account seeded on first boot. It can never
	// be deleted.
	DefaultAdminUsername = "admin"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:16;not null" json:"role"`
	DisplayName  string    `gorm:"size:128" json:"display_name"`
	Email        string    `gorm:"size:128" json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Teams []string `gorm:"-" json:"teams"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserTeam is one team membership row; a user may hold several.
type UserTeam struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index;uniqueIndex:idx_user_team" json:"user_id"`
	Team   string `gorm:"size:64;not null;uniqueIndex:idx_user_team" json:"team"`
}
