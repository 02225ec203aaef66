package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/model"
	"teamchat/internal/repository"
)

func newTestAccess(t *testing.T) (*AccessService, *repository.DocumentTeamRepository) {
	t.Helper()
	repo := repository.NewDocumentTeamRepository(openTestDB(t))
	return NewAccessService(repo), repo
}

func seedDocTeams(t *testing.T, repo *repository.DocumentTeamRepository) {
	t.Helper()
	require.NoError(t, repo.ReplaceForDoc("d-sales", []string{"sales"}))
	require.NoError(t, repo.ReplaceForDoc("d-hr", []string{"hr"}))
	require.NoError(t, repo.ReplaceForDoc("d-both", []string{"sales", "hr"}))
}

func TestResolveContextAdminUnrestricted(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	admin := Identity{UserID: 1, Username: "admin", Role: model.RoleAdmin}

	scope, err := access.ResolveContext(admin, nil)
	require.NoError(t, err)
	assert.True(t, scope.All)
	assert.False(t, scope.Empty())
}

func TestResolveContextAdminExplicitSelection(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	admin := Identity{UserID: 1, Username: "admin", Role: model.RoleAdmin}

	scope, err := access.ResolveContext(admin, []string{"d-hr", "d-unknown"})
	require.NoError(t, err)
	assert.False(t, scope.All)
	assert.Equal(t, []string{"d-hr", "d-unknown"}, scope.DocIDs)
}

func TestResolveContextMemberTeamUnion(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	member := Identity{UserID: 2, Username: "alice", Role: model.RoleMember, Teams: []string{"sales"}}

	scope, err := access.ResolveContext(member, nil)
	require.NoError(t, err)
	assert.False(t, scope.All)
	assert.ElementsMatch(t, []string{"d-sales", "d-both"}, scope.DocIDs)
}

func TestResolveContextMemberIntersection(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	member := Identity{UserID: 2, Username: "alice", Role: model.RoleMember, Teams: []string{"sales"}}

	scope, err := access.ResolveContext(member, []string{"d-sales", "d-hr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d-sales"}, scope.DocIDs)
}

func TestResolveContextMemberDisjointSelectionIsEmpty(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	member := Identity{UserID: 2, Username: "alice", Role: model.RoleMember, Teams: []string{"sales"}}

	scope, err := access.ResolveContext(member, []string{"d-hr"})
	require.NoError(t, err)
	assert.True(t, scope.Empty())
	assert.False(t, scope.All)
}

func TestResolveContextMemberWithoutTeams(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)
	member := Identity{UserID: 2, Username: "bob", Role: model.RoleMember}

	scope, err := access.ResolveContext(member, nil)
	require.NoError(t, err)
	assert.True(t, scope.Empty())

	scope, err = access.ResolveContext(member, []string{"d-sales"})
	require.NoError(t, err)
	assert.True(t, scope.Empty())
}

func TestVisibleDocIDs(t *testing.T) {
	access, repo := newTestAccess(t)
	seedDocTeams(t, repo)

	admin := Identity{UserID: 1, Role: model.RoleAdmin}
	visible, err := access.VisibleDocIDs(admin, []string{"d-sales", "d-untagged"})
	require.NoError(t, err)
	assert.True(t, visible["d-sales"])
	assert.True(t, visible["d-untagged"])

	member := Identity{UserID: 2, Role: model.RoleMember, Teams: []string{"hr"}}
	visible, err = access.VisibleDocIDs(member, []string{"d-sales", "d-hr", "d-both", "d-untagged"})
	require.NoError(t, err)
	assert.False(t, visible["d-sales"])
	assert.True(t, visible["d-hr"])
	assert.True(t, visible["d-both"])
	assert.False(t, visible["d-untagged"])
}
