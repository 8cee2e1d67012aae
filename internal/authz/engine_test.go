package authz

import (
	"context"
	"testing"

	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/resources"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	contexts map[uuid.UUID]resources.OwnershipContext
}

func (f *fakeResolver) Resolve(_ context.Context, ref resources.Ref) (resources.OwnershipContext, error) {
	return f.contexts[ref.ID], nil
}

type fakeMemberships struct {
	roles map[uuid.UUID]map[uuid.UUID]groups.Role
}

func (f *fakeMemberships) RoleOf(_ context.Context, userID, groupID uuid.UUID) (groups.Role, error) {
	role, ok := f.roles[groupID][userID]
	if !ok {
		return "", groups.ErrMembershipNotFound
	}
	return role, nil
}

type engineFixture struct {
	engine *Engine

	owner    uuid.UUID
	viewer   uuid.UUID
	editor   uuid.UUID
	admin    uuid.UUID
	stranger uuid.UUID

	groupID uuid.UUID

	sharedApiary   resources.Ref
	unsharedApiary resources.Ref
	soloApiary     resources.Ref
	missingApiary  resources.Ref
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		owner:    uuid.New(),
		viewer:   uuid.New(),
		editor:   uuid.New(),
		admin:    uuid.New(),
		stranger: uuid.New(),
		groupID:  uuid.New(),
	}

	group := uuid.NullUUID{UUID: f.groupID, Valid: true}
	ownedBy := func(owner uuid.UUID) uuid.NullUUID {
		return uuid.NullUUID{UUID: owner, Valid: true}
	}

	f.sharedApiary = resources.Ref{Kind: resources.KindApiary, ID: uuid.New()}
	f.unsharedApiary = resources.Ref{Kind: resources.KindApiary, ID: uuid.New()}
	f.soloApiary = resources.Ref{Kind: resources.KindApiary, ID: uuid.New()}
	f.missingApiary = resources.Ref{Kind: resources.KindApiary, ID: uuid.New()}

	resolver := &fakeResolver{contexts: map[uuid.UUID]resources.OwnershipContext{
		f.sharedApiary.ID:   {OwnerID: ownedBy(f.owner), GroupID: group, Shared: true},
		f.unsharedApiary.ID: {OwnerID: ownedBy(f.owner), GroupID: group, Shared: false},
		f.soloApiary.ID:     {OwnerID: ownedBy(f.owner)},
	}}

	memberships := &fakeMemberships{roles: map[uuid.UUID]map[uuid.UUID]groups.Role{
		f.groupID: {
			f.viewer: groups.RoleViewer,
			f.editor: groups.RoleEditor,
			f.admin:  groups.RoleAdmin,
		},
	}}

	f.engine = NewEngine(resolver, memberships)
	return f
}

func TestDecide_OwnerHasFullRights(t *testing.T) {
	f := newEngineFixture()

	for _, action := range []Action{ActionRead, ActionWrite, ActionAdminister} {
		for _, ref := range []resources.Ref{f.sharedApiary, f.unsharedApiary, f.soloApiary} {
			decision, err := f.engine.Decide(context.Background(), f.owner, ref, action)
			require.NoError(t, err)
			require.True(t, decision.Allowed, "owner should be allowed %s", action)
			require.Empty(t, decision.Reason)
		}
	}
}

func TestDecide_RoleThresholds(t *testing.T) {
	f := newEngineFixture()

	cases := []struct {
		name    string
		user    uuid.UUID
		action  Action
		allowed bool
	}{
		{"viewer reads", f.viewer, ActionRead, true},
		{"viewer cannot write", f.viewer, ActionWrite, false},
		{"viewer cannot administer", f.viewer, ActionAdminister, false},
		{"editor reads", f.editor, ActionRead, true},
		{"editor writes", f.editor, ActionWrite, true},
		{"editor cannot administer", f.editor, ActionAdminister, false},
		{"admin reads", f.admin, ActionRead, true},
		{"admin writes", f.admin, ActionWrite, true},
		{"admin administers", f.admin, ActionAdminister, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := f.engine.Decide(context.Background(), tc.user, f.sharedApiary, tc.action)
			require.NoError(t, err)
			require.Equal(t, tc.allowed, decision.Allowed)
			if !tc.allowed {
				require.Equal(t, ReasonInsufficientRole, decision.Reason)
			}
		})
	}
}

func TestDecide_UnsharedResourceDeniesGroupMembers(t *testing.T) {
	f := newEngineFixture()

	// The group assignment alone grants nothing; sharing must be switched on.
	for _, user := range []uuid.UUID{f.viewer, f.editor, f.admin} {
		decision, err := f.engine.Decide(context.Background(), user, f.unsharedApiary, ActionRead)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		require.Equal(t, ReasonNoRelationship, decision.Reason)
	}
}

func TestDecide_NonMemberDenied(t *testing.T) {
	f := newEngineFixture()

	decision, err := f.engine.Decide(context.Background(), f.stranger, f.sharedApiary, ActionRead)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotMember, decision.Reason)
}

func TestDecide_UnresolvedResourceDenied(t *testing.T) {
	f := newEngineFixture()

	// The resolver returns a zero ownership context for missing rows; the
	// engine treats that as no relationship rather than an error.
	decision, err := f.engine.Decide(context.Background(), f.owner, f.missingApiary, ActionRead)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoRelationship, decision.Reason)
}

func TestDecide_AnonymousDenied(t *testing.T) {
	f := newEngineFixture()

	decision, err := f.engine.Decide(context.Background(), uuid.Nil, f.sharedApiary, ActionRead)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNotAuthenticated, decision.Reason)
}

func TestDecide_UnknownActionDenied(t *testing.T) {
	f := newEngineFixture()

	decision, err := f.engine.Decide(context.Background(), f.owner, f.sharedApiary, Action("delete"))
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonUnknownAction, decision.Reason)
}
