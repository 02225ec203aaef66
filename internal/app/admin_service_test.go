package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"teamchat/internal/model"
	"teamchat/internal/repository"
)

type adminFixture struct {
	svc       *AdminService
	db        *gorm.DB
	users     *repository.UserRepository
	docTeams  *repository.DocumentTeamRepository
	auditLogs *repository.AuditLogRepository
	publisher *fakePublisher
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	db := openTestDB(t)
	users := repository.NewUserRepository(db)
	docTeams := repository.NewDocumentTeamRepository(db)
	auditLogs := repository.NewAuditLogRepository(db)
	publisher := &fakePublisher{}
	return &adminFixture{
		svc:       NewAdminService(users, docTeams, auditLogs, publisher),
		db:        db,
		users:     users,
		docTeams:  docTeams,
		auditLogs: auditLogs,
		publisher: publisher,
	}
}

func adminActor() Identity {
	return Identity{UserID: 1, Username: model.DefaultAdminUsername, Role: model.RoleAdmin}
}

func TestAdminCreateUser(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	user, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{
		Username: "alice",
		Password: "password-123",
		Teams:    []string{"sales", " sales ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, user.Role)

	loaded, err := fx.users.GetByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"sales"}, loaded.Teams)
}

func TestAdminCreateUserRejections(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "x", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "x", Password: "password-123", Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123"})
	require.NoError(t, err)
	_, err = fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestAdminDeleteUserProtections(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	err := fx.svc.DeleteUser(ctx, adminActor(), model.DefaultAdminUsername)
	assert.ErrorIs(t, err, ErrProtectedAccount)

	actor := Identity{UserID: 5, Username: "carol", Role: model.RoleAdmin}
	err = fx.svc.DeleteUser(ctx, actor, "carol")
	assert.ErrorIs(t, err, ErrSelfDelete)

	err = fx.svc.DeleteUser(ctx, adminActor(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdminDeleteUserCascades(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	user, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123"})
	require.NoError(t, err)

	ledger := NewLedgerService(repository.NewTurnRepository(fx.db), nil)
	_, err = ledger.AppendTurn(ctx, user.ID, "s1", model.RoleUser, "hello", true)
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteUser(ctx, adminActor(), "alice"))

	loaded, err := fx.users.GetByUsername("alice")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	turns, err := ledger.GetTranscript(ctx, user.ID, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAdminSetRoleAndTeams(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123", Teams: []string{"sales"}})
	require.NoError(t, err)

	err = fx.svc.SetRoleAndTeams(ctx, adminActor(), "alice", "owner", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)

	require.NoError(t, fx.svc.SetRoleAndTeams(ctx, adminActor(), "alice", model.RoleAdmin, []string{"legal"}))

	loaded, err := fx.users.GetByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, loaded.Role)
	assert.Equal(t, []string{"legal"}, loaded.Teams)
}

func TestAdminResetPassword(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123"})
	require.NoError(t, err)

	err = fx.svc.ResetPassword(ctx, adminActor(), "alice", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, fx.svc.ResetPassword(ctx, adminActor(), "alice", "brand-new-pass"))
}

func TestAdminListTeamsMergesUsersAndDocuments(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123", Teams: []string{"sales"}})
	require.NoError(t, err)
	require.NoError(t, fx.svc.SetDocumentTeams(ctx, adminActor(), "d1", []string{"hr", "sales"}))

	teams, err := fx.svc.ListTeams()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sales", "hr"}, teams)
}

func TestAdminListAuditLogs(t *testing.T) {
	fx := newAdminFixture(t)

	for _, action := range []string{"user.create", "document.upload", "user.delete"} {
		require.NoError(t, fx.auditLogs.Create(&model.AuditLog{
			Actor:  model.DefaultAdminUsername,
			Action: action,
			At:     time.Now(),
		}))
	}

	logs, err := fx.svc.ListAuditLogs(0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "user.delete", logs[0].Action)
	assert.Equal(t, "user.create", logs[2].Action)

	logs, err = fx.svc.ListAuditLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "user.delete", logs[0].Action)
}

func TestAdminActionsAudited(t *testing.T) {
	fx := newAdminFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateUser(ctx, adminActor(), CreateUserInput{Username: "alice", Password: "password-123"})
	require.NoError(t, err)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, "user.create", fx.publisher.events[0].Action)
	assert.Equal(t, model.DefaultAdminUsername, fx.publisher.events[0].Actor)
	assert.Equal(t, "alice", fx.publisher.events[0].Entity)
}
