package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"teamchat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and its team rows in one transaction.
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user failed: %w", err)
		}
		for _, team := range user.Teams {
			if err := tx.Create(&model.UserTeam{UserID: user.ID, Team: team}).Error; err != nil {
				return fmt.Errorf("create user team failed: %w", err)
			}
		}
		return nil
	})
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by username failed: %w", err)
	}
	if err := r.loadTeams(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	if err := r.loadTeams(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List() ([]model.User, error) {
	var users []model.User
	if err := r.db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	for i := range users {
		if err := r.loadTeams(&users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepository) UpdateProfile(id uint, displayName, email string) error {
	updates := map[string]interface{}{
		"display_name": displayName,
		"email":        email,
	}
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update profile failed: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePasswordHash(id uint, hash string) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("update password failed: %w", err)
	}
	return nil
}

// SetRoleAndTeams overwrites the user's role and replaces the full team set.
func (r *UserRepository) SetRoleAndTeams(id uint, role string, teams []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", id).Update("role", role).Error; err != nil {
			return fmt.Errorf("update role failed: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.UserTeam{}).Error; err != nil {
			return fmt.Errorf("clear user teams failed: %w", err)
		}
		for _, team := range teams {
			if err := tx.Create(&model.UserTeam{UserID: id, Team: team}).Error; err != nil {
				return fmt.Errorf("create user team failed: %w", err)
			}
		}
		return nil
	})
}

// DeleteCascade removes the user together with all of their turns and team
// rows, atomically.
func (r *UserRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&model.Turn{}).Error; err != nil {
			return fmt.Errorf("delete user turns failed: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.UserTeam{}).Error; err != nil {
			return fmt.Errorf("delete user teams failed: %w", err)
		}
		if err := tx.Delete(&model.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user failed: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) DistinctTeams() ([]string, error) {
	var teams []string
	if err := r.db.Model(&model.UserTeam{}).Distinct("team").Order("team ASC").Pluck("team", &teams).Error; err != nil {
		return nil, fmt.Errorf("list user teams failed: %w", err)
	}
	return teams, nil
}

func (r *UserRepository) loadTeams(user *model.User) error {
	var teams []string
	if err := r.db.Model(&model.UserTeam{}).Where("user_id = ?", user.ID).Order("team ASC").Pluck("team", &teams).Error; err != nil {
		return fmt.Errorf("load user teams failed: %w", err)
	}
	user.Teams = teams
	return nil
}
