package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamchat/internal/model"
	"teamchat/internal/repository"
)

var (
	ErrUsernameExists   = errors.New("username already exists")
	ErrProtectedAccount = errors.New("the default admin account cannot be deleted")
	ErrSelfDelete       = errors.New("cannot delete your own account")
	ErrInvalidRole      = errors.New("invalid role")
)

// AdminService covers the administrative identity and document-tagging
// operations. Every method assumes the caller was already verified to be an
// admin by the transport layer.
type AdminService struct {
	userRepo    *repository.UserRepository
	docTeamRepo *repository.DocumentTeamRepository
	auditRepo   *repository.AuditLogRepository
	publisher   AuditPublisher
}

func NewAdminService(userRepo *repository.UserRepository, docTeamRepo *repository.DocumentTeamRepository, auditRepo *repository.AuditLogRepository, publisher AuditPublisher) *AdminService {
	return &AdminService{
		userRepo:    userRepo,
		docTeamRepo: docTeamRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
	}
}

type CreateUserInput struct {
	Username string
	Password string
	Role     string
	Teams    []string
}

func (s *AdminService) CreateUser(ctx context.Context, actor Identity, input CreateUserInput) (*model.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(input.Password) < minPasswordLength {
		return nil, ErrInvalidInput
	}
	role := input.Role
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		return nil, ErrInvalidRole
	}

	existing, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}
	user := &model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Teams:        normalizeTeams(input.Teams),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "user.create", username)
	return user, nil
}

func (s *AdminService) ListUsers() ([]model.User, error) {
	return s.userRepo.List()
}

// DeleteUser removes the user and, atomically with it, all of their sessions
// and turns. The seeded default admin is protected unconditionally, and
// admins cannot delete the account they are logged in as.
func (s *AdminService) DeleteUser(ctx context.Context, actor Identity, username string) error {
	username = strings.TrimSpace(username)
	if username == model.DefaultAdminUsername {
		return ErrProtectedAccount
	}
	if username == actor.Username {
		return ErrSelfDelete
	}
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.userRepo.DeleteCascade(user.ID); err != nil {
		return err
	}
	s.audit(ctx, actor, "user.delete", username)
	return nil
}

// SetRoleAndTeams overwrites the user's role and full team set.
func (s *AdminService) SetRoleAndTeams(ctx context.Context, actor Identity, username, role string, teams []string) error {
	if role != model.RoleAdmin && role != model.RoleMember {
		return ErrInvalidRole
	}
	user, err := s.userRepo.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.userRepo.SetRoleAndTeams(user.ID, role, normalizeTeams(teams)); err != nil {
		return err
	}
	s.audit(ctx, actor, "user.update", username)
	return nil
}

// ResetPassword sets a new password for any user without requiring the old
// one.
func (s *AdminService) ResetPassword(ctx context.Context, actor Identity, username, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrInvalidInput
	}
	user, err := s.userRepo.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(user.ID, string(hash)); err != nil {
		return err
	}
	s.audit(ctx, actor, "user.reset_password", username)
	return nil
}

// SetDocumentTeams replaces a document's team tags wholesale.
func (s *AdminService) SetDocumentTeams(ctx context.Context, actor Identity, docID string, teams []string) error {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return ErrInvalidInput
	}
	if err := s.docTeamRepo.ReplaceForDoc(docID, normalizeTeams(teams)); err != nil {
		return err
	}
	s.audit(ctx, actor, "document.retag", docID)
	return nil
}

func (s *AdminService) DocumentTeams(docID string) ([]string, error) {
	return s.docTeamRepo.ListByDocID(docID)
}

// ListTeams returns every team name known to the system, whether it appears
// on users or on documents.
func (s *AdminService) ListTeams() ([]string, error) {
	userTeams, err := s.userRepo.DistinctTeams()
	if err != nil {
		return nil, err
	}
	docTeams, err := s.docTeamRepo.DistinctTeams()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(userTeams)+len(docTeams))
	merged := make([]string, 0, len(userTeams)+len(docTeams))
	for _, t := range append(userTeams, docTeams...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged, nil
}

// ListAuditLogs returns the newest audit entries first. The worker writes
// entries asynchronously, so a just-performed action may not appear yet.
func (s *AdminService) ListAuditLogs(limit int) ([]model.AuditLog, error) {
	return s.auditRepo.ListRecent(limit)
}

func (s *AdminService) audit(ctx context.Context, actor Identity, action, entity string) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, model.AuditEvent{
		Actor:  actor.Username,
		Action: action,
		Entity: entity,
		At:     time.Now(),
	})
}

func normalizeTeams(teams []string) []string {
	seen := make(map[string]struct{}, len(teams))
	out := make([]string, 0, len(teams))
	for _, t := range teams {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
