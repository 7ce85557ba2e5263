package access_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/database"
)

const owner = "owner-addr"

func newService(t *testing.T) *access.Service {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	svc := access.NewService(db)
	require.NoError(t, svc.Bootstrap(owner))
	return svc
}

func TestBootstrapSeedsOwnerAsAdmin(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.RequireOwner(owner))
	require.NoError(t, svc.RequireAdmin(owner))

	// A second bootstrap never replaces the owner.
	require.NoError(t, svc.Bootstrap("usurper"))
	require.NoError(t, svc.RequireOwner(owner))
	assert.ErrorIs(t, svc.RequireOwner("usurper"), access.ErrNotOwner)
}

func TestSetAdminIsOwnerOnly(t *testing.T) {
	svc := newService(t)

	assert.ErrorIs(t, svc.SetAdmin("alice", "bob", true), access.ErrNotOwner)

	require.NoError(t, svc.SetAdmin(owner, "bob", true))
	require.NoError(t, svc.RequireAdmin("bob"))

	// Admins still cannot mint admins.
	assert.ErrorIs(t, svc.SetAdmin("bob", "carol", true), access.ErrNotOwner)

	require.NoError(t, svc.SetAdmin(owner, "bob", false))
	assert.ErrorIs(t, svc.RequireAdmin("bob"), access.ErrNotAdmin)
}

func TestTransferOwnershipGrantsAdmin(t *testing.T) {
	svc := newService(t)

	assert.ErrorIs(t, svc.TransferOwnership("alice", "alice"), access.ErrNotOwner)

	require.NoError(t, svc.TransferOwnership(owner, "alice"))
	require.NoError(t, svc.RequireOwner("alice"))
	require.NoError(t, svc.RequireAdmin("alice"))

	// The old owner keeps its admin flag but loses ownership.
	assert.ErrorIs(t, svc.RequireOwner(owner), access.ErrNotOwner)
	require.NoError(t, svc.RequireAdmin(owner))
}

func TestAssertActiveUser(t *testing.T) {
	svc := newService(t)

	// Unknown users are active by default.
	require.NoError(t, svc.AssertActiveUser("fresh"))

	require.NoError(t, svc.SetBanned(owner, "fresh", true))
	assert.ErrorIs(t, svc.AssertActiveUser("fresh"), access.ErrUserInactive)

	require.NoError(t, svc.SetBanned(owner, "fresh", false))
	require.NoError(t, svc.AssertActiveUser("fresh"))

	require.NoError(t, svc.SetFrozen(owner, "fresh", true))
	assert.ErrorIs(t, svc.AssertActiveUser("fresh"), access.ErrUserInactive)
}

func TestFlagSettersRequireAdmin(t *testing.T) {
	svc := newService(t)

	assert.ErrorIs(t, svc.SetBanned("nobody", "bob", true), access.ErrNotAdmin)
	assert.ErrorIs(t, svc.SetFrozen("nobody", "bob", true), access.ErrNotAdmin)
	assert.ErrorIs(t, svc.SetTier2Approved("nobody", "bob", true), access.ErrNotAdmin)

	require.NoError(t, svc.SetAdmin(owner, "moderator", true))
	require.NoError(t, svc.SetTier2Approved("moderator", "bob", true))

	account, err := svc.GetAccount("bob")
	require.NoError(t, err)
	assert.True(t, account.Tier2Approved)
}
