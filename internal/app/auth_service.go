package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamchat/internal/model"
	"teamchat/internal/pkg/jwtutil"
	"teamchat/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrUserNotFound      = errors.New("user not found")
)

const minPasswordLength = 8

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// Login verifies credentials and mints a token. A missing user and a wrong
// password both come back as ErrInvalidCredential so callers cannot probe
// for usernames.
func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := input.Password
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

// IdentityFor loads the caller's current role and team memberships.
func (s *AuthService) IdentityFor(userID uint) (Identity, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return Identity{}, err
	}
	if user == nil {
		return Identity{}, ErrUserNotFound
	}
	return Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Teams:    user.Teams,
	}, nil
}

func (s *AuthService) UpdateProfile(userID uint, displayName, email string) error {
	if userID == 0 {
		return ErrInvalidInput
	}
	return s.userRepo.UpdateProfile(userID, strings.TrimSpace(displayName), strings.TrimSpace(strings.ToLower(email)))
}

func (s *AuthService) UpdatePassword(userID uint, currentPassword, newPassword string) error {
	if userID == 0 || len(newPassword) < minPasswordLength {
		return ErrInvalidInput
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return ErrInvalidCredential
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	return s.userRepo.UpdatePasswordHash(userID, string(hash))
}
