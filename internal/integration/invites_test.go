package integration

import (
	"context"
	"testing"
	"time"

	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/invites"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newInviteFixture(t *testing.T) (*pgxpool.Pool, *groups.Service, *invites.Service, uuid.UUID, uuid.UUID, func()) {
	t.Helper()
	pool, cleanup := newTestDB(t)

	groupSvc := groups.NewService(pool)
	inviteSvc := invites.NewService(pool, 7*24*time.Hour)

	admin := createTestUser(t, pool, "admin@example.com")
	group, err := groupSvc.CreateWithAdmin(context.Background(), "Yard", "", admin)
	require.NoError(t, err)

	return pool, groupSvc, inviteSvc, group.ID, admin, cleanup
}

func TestIntegration_CreateInvite_AdminOnly(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	viewer := createTestUser(t, pool, "viewer@example.com")
	addMember(t, pool, groupID, viewer, groups.RoleViewer)
	outsider := createTestUser(t, pool, "outsider@example.com")

	_, _, err := inviteSvc.Create(ctx, groupID, viewer, "new@example.com", groups.RoleViewer)
	require.ErrorIs(t, err, groups.ErrInsufficientRole)

	_, _, err = inviteSvc.Create(ctx, groupID, outsider, "new@example.com", groups.RoleViewer)
	require.ErrorIs(t, err, groups.ErrNotMember)

	invite, token, err := inviteSvc.Create(ctx, groupID, admin, "New@Example.com", groups.RoleEditor)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", invite.Email, "email is normalized")
	require.Equal(t, groups.RoleEditor, invite.Role)
	require.Equal(t, invites.StatusInvited, invite.Status)
	require.True(t, invites.ValidateTokenFormat(token))
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), invite.ExpiresAt, time.Minute)
}

func TestIntegration_CreateInvite_DuplicateOpenInviteConflicts(t *testing.T) {
	_, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	_, _, err := inviteSvc.Create(ctx, groupID, admin, "bee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, _, err = inviteSvc.Create(ctx, groupID, admin, "bee@example.com", groups.RoleEditor)
	require.ErrorIs(t, err, invites.ErrDuplicateInvite)

	// Case differences do not dodge the duplicate check.
	_, _, err = inviteSvc.Create(ctx, groupID, admin, "BEE@example.com", groups.RoleViewer)
	require.ErrorIs(t, err, invites.ErrDuplicateInvite)
}

func TestIntegration_AcceptInvite_CreatesMembership(t *testing.T) {
	pool, groupSvc, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	_, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleEditor)
	require.NoError(t, err)

	invite, created, err := inviteSvc.Accept(ctx, token, invitee)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, invites.StatusAccepted, invite.Status)

	role, err := groupSvc.Memberships().RoleOf(ctx, invitee, groupID)
	require.NoError(t, err)
	require.Equal(t, groups.RoleEditor, role)
}

func TestIntegration_AcceptInvite_Idempotent(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	_, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, created, err := inviteSvc.Accept(ctx, token, invitee)
	require.NoError(t, err)
	require.True(t, created)

	// A second accept succeeds without creating another membership.
	invite, created, err := inviteSvc.Accept(ctx, token, invitee)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, invites.StatusAccepted, invite.Status)

	var memberships int
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, invitee).Scan(&memberships)
	require.NoError(t, err)
	require.Equal(t, 1, memberships)
}

func TestIntegration_AcceptInvite_DoesNotDowngradeExistingMember(t *testing.T) {
	pool, groupSvc, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	addMember(t, pool, groupID, invitee, groups.RoleAdmin)

	_, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, created, err := inviteSvc.Accept(ctx, token, invitee)
	require.NoError(t, err)
	require.False(t, created)

	role, err := groupSvc.Memberships().RoleOf(ctx, invitee, groupID)
	require.NoError(t, err)
	require.Equal(t, groups.RoleAdmin, role)
}

func TestIntegration_AcceptInvite_EmailMismatch(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	stranger := createTestUser(t, pool, "stranger@example.com")
	_, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, _, err = inviteSvc.Accept(ctx, token, stranger)
	require.ErrorIs(t, err, invites.ErrInviteEmailMismatch)
}

func TestIntegration_AcceptInvite_BadToken(t *testing.T) {
	pool, _, inviteSvc, _, _, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	user := createTestUser(t, pool, "someone@example.com")

	_, _, err := inviteSvc.Accept(ctx, "bhi_definitely-not-a-real-token", user)
	require.ErrorIs(t, err, invites.ErrInviteNotFound)

	token, _, err := invites.GenerateToken()
	require.NoError(t, err)
	_, _, err = inviteSvc.Accept(ctx, token, user)
	require.ErrorIs(t, err, invites.ErrInviteNotFound)
}

func TestIntegration_AcceptInvite_ExpiredIsSettledLazily(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	invite, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		UPDATE group_invites SET expires_at = NOW() - INTERVAL '1 hour' WHERE id = $1
	`, invite.ID)
	require.NoError(t, err)

	_, _, err = inviteSvc.Accept(ctx, token, invitee)
	require.ErrorIs(t, err, invites.ErrInviteExpired)

	var status invites.Status
	err = pool.QueryRow(ctx, `SELECT status FROM group_invites WHERE id = $1`, invite.ID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, invites.StatusExpired, status)

	// With the stale invite settled, re-inviting the same email works.
	_, _, err = inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)
}

func TestIntegration_DeclineInvite(t *testing.T) {
	pool, groupSvc, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	_, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	invite, err := inviteSvc.Decline(ctx, token, invitee)
	require.NoError(t, err)
	require.Equal(t, invites.StatusDeclined, invite.Status)

	// No membership was created, and the invite cannot be accepted afterwards.
	_, err = groupSvc.Memberships().RoleOf(ctx, invitee, groupID)
	require.ErrorIs(t, err, groups.ErrMembershipNotFound)

	_, _, err = inviteSvc.Accept(ctx, token, invitee)
	require.ErrorIs(t, err, invites.ErrInviteNotActive)
}

func TestIntegration_CancelInvite(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	invitee := createTestUser(t, pool, "invitee@example.com")
	invite, token, err := inviteSvc.Create(ctx, groupID, admin, "invitee@example.com", groups.RoleViewer)
	require.NoError(t, err)

	require.NoError(t, inviteSvc.Cancel(ctx, groupID, invite.ID, admin))

	// Cancelling twice reports not found; the invite is no longer open.
	require.ErrorIs(t, inviteSvc.Cancel(ctx, groupID, invite.ID, admin), invites.ErrInviteNotFound)

	_, _, err = inviteSvc.Accept(ctx, token, invitee)
	require.ErrorIs(t, err, invites.ErrInviteExpired)
}

func TestIntegration_ListOpenInvites(t *testing.T) {
	_, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	_, _, err := inviteSvc.Create(ctx, groupID, admin, "a@example.com", groups.RoleViewer)
	require.NoError(t, err)
	second, _, err := inviteSvc.Create(ctx, groupID, admin, "b@example.com", groups.RoleEditor)
	require.NoError(t, err)

	require.NoError(t, inviteSvc.Cancel(ctx, groupID, second.ID, admin))

	items, err := inviteSvc.ListOpen(ctx, groupID, admin)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "a@example.com", items[0].Email)
	require.Equal(t, "admin@example.com", items[0].CreatedByEmail)
}

func TestIntegration_ExpireOverdueSweep(t *testing.T) {
	pool, _, inviteSvc, groupID, admin, cleanup := newInviteFixture(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	stale, _, err := inviteSvc.Create(ctx, groupID, admin, "stale@example.com", groups.RoleViewer)
	require.NoError(t, err)
	_, _, err = inviteSvc.Create(ctx, groupID, admin, "fresh@example.com", groups.RoleViewer)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		UPDATE group_invites SET expires_at = NOW() - INTERVAL '1 day' WHERE id = $1
	`, stale.ID)
	require.NoError(t, err)

	expired, err := inviteSvc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	// The sweep is idempotent.
	expired, err = inviteSvc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, expired)

	var status invites.Status
	err = pool.QueryRow(ctx, `SELECT status FROM group_invites WHERE id = $1`, stale.ID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, invites.StatusExpired, status)
}
