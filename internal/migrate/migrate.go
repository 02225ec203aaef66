package migrate

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"teamchat/internal/model"
)

// A step is one idempotent structural change. Check reports whether the store
// already satisfies the step; Apply performs it. Steps are applied in order
// inside a single transaction so a failure leaves the store at its previous
// structure.
type step struct {
	name  string
	check func(m gorm.Migrator) bool
	apply func(tx *gorm.DB) error
}

func steps() []step {
	return []step{
		{
			name:  "create_users",
			check: func(m gorm.Migrator) bool { return m.HasTable(&model.User{}) },
			apply: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&model.User{}) },
		},
		{
			name:  "create_user_teams",
			check: func(m gorm.Migrator) bool { return m.HasTable(&model.UserTeam{}) },
			apply: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&model.UserTeam{}) },
		},
		{
			name:  "create_turns",
			check: func(m gorm.Migrator) bool { return m.HasTable(&model.Turn{}) },
			apply: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&model.Turn{}) },
		},
		{
			name:  "create_document_teams",
			check: func(m gorm.Migrator) bool { return m.HasTable(&model.DocumentTeam{}) },
			apply: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&model.DocumentTeam{}) },
		},
		{
			name:  "create_audit_logs",
			check: func(m gorm.Migrator) bool { return m.HasTable(&model.AuditLog{}) },
			apply: func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&model.AuditLog{}) },
		},
		// Columns added after the tables first shipped. CreateTable already
		// includes them on fresh stores; these upgrade older stores in place.
		{
			name:  "users_add_display_name",
			check: func(m gorm.Migrator) bool { return m.HasColumn(&model.User{}, "display_name") },
			apply: func(tx *gorm.DB) error { return tx.Migrator().AddColumn(&model.User{}, "display_name") },
		},
		{
			name:  "users_add_email",
			check: func(m gorm.Migrator) bool { return m.HasColumn(&model.User{}, "email") },
			apply: func(tx *gorm.DB) error { return tx.Migrator().AddColumn(&model.User{}, "email") },
		},
		{
			name:  "turns_add_title",
			check: func(m gorm.Migrator) bool { return m.HasColumn(&model.Turn{}, "title") },
			apply: func(tx *gorm.DB) error { return tx.Migrator().AddColumn(&model.Turn{}, "title") },
		},
	}
}

// Ensure brings the store to the current structure and seeds the default
// admin account if no users exist yet. Safe to call against an already
// current store; it then changes nothing.
func Ensure(db *gorm.DB, logger *zap.Logger) error {
	applied := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, s := range steps() {
			if s.check(tx.Migrator()) {
				continue
			}
			if err := s.apply(tx); err != nil {
				return fmt.Errorf("migration step %s failed: %w", s.name, err)
			}
			applied++
			logger.Info("applied migration step", zap.String("component", "migrate"), zap.String("step", s.name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if applied == 0 {
		logger.Debug("store already at current structure", zap.String("component", "migrate"))
	}
	return seedDefaultAdmin(db, logger)
}

func seedDefaultAdmin(db *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users failed: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(model.DefaultAdminUsername), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default admin password failed: %w", err)
	}
	admin := &model.User{
		Username:     model.DefaultAdminUsername,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}
	if err := db.Create(admin).Error; err != nil {
		return fmt.Errorf("seed default admin failed: %w", err)
	}
	logger.Info("seeded default admin account", zap.String("component", "migrate"), zap.String("username", admin.Username))
	return nil
}
