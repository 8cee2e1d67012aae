// Package authz is the single decision point for resource access. Every
// call site asks Decide instead of re-implementing the owner-or-group-role
// rule inline.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/resources"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Action is the operation class a caller wants to perform on a resource.
type Action string

const (
	ActionRead       Action = "read"
	ActionWrite      Action = "write"
	ActionAdminister Action = "administer"
)

// IsValid returns true if the action is one of the known values
func (a Action) IsValid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionAdminister:
		return true
	}
	return false
}

// requiredRole returns the minimum group role that satisfies the action.
// Admin is the top of the hierarchy, so the administer threshold is
// equivalent to requiring exactly admin.
func requiredRole(a Action) groups.Role {
	switch a {
	case ActionRead:
		return groups.RoleViewer
	case ActionWrite:
		return groups.RoleEditor
	default:
		return groups.RoleAdmin
	}
}

// Deny reasons, stable across call sites so handlers and logs agree.
const (
	ReasonUnknownAction    = "unknown action"
	ReasonNotAuthenticated = "not authenticated"
	ReasonNotMember        = "not a group member"
	ReasonInsufficientRole = "insufficient role"
	ReasonNoRelationship   = "no ownership or sharing relationship"
)

// Decision is the outcome of an authorization check. A deny is a normal
// result, not an error; Reason is always set when Allowed is false.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// MembershipReader is the membership lookup the engine depends on.
// *groups.MembershipStore satisfies it.
type MembershipReader interface {
	RoleOf(ctx context.Context, userID, groupID uuid.UUID) (groups.Role, error)
}

// Engine decides whether a user may perform an action on a resource. It
// performs only reads and is safe for concurrent use; all membership
// mutation goes through the group and invitation services.
type Engine struct {
	resolver    resources.Resolver
	memberships MembershipReader
}

// NewEngine creates an authorization engine
func NewEngine(resolver resources.Resolver, memberships MembershipReader) *Engine {
	return &Engine{resolver: resolver, memberships: memberships}
}

// Decide evaluates the access rule:
//
//  1. the resource owner always has full rights, regardless of sharing state
//  2. otherwise, a resource explicitly shared with a group grants access to
//     members whose role meets the action threshold (read: viewer,
//     write: editor, administer: admin)
//  3. otherwise access is denied
//
// A group assignment without the sharing flag grants nothing: sharing is an
// explicit opt-in, not implied by the group field being set.
func (e *Engine) Decide(ctx context.Context, userID uuid.UUID, ref resources.Ref, action Action) (Decision, error) {
	if !action.IsValid() {
		return deny(ReasonUnknownAction), nil
	}
	if userID == uuid.Nil {
		return deny(ReasonNotAuthenticated), nil
	}

	oc, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve resource: %w", err)
	}

	if oc.OwnerID.Valid && oc.OwnerID.UUID == userID {
		return allow(), nil
	}

	if oc.Shared && oc.GroupID.Valid {
		role, err := e.memberships.RoleOf(ctx, userID, oc.GroupID.UUID)
		if err != nil {
			if errors.Is(err, groups.ErrMembershipNotFound) {
				log.Debug().
					Str("user_id", userID.String()).
					Str("resource_kind", string(ref.Kind)).
					Str("resource_id", ref.ID.String()).
					Msg("RBAC: user is not a member of the sharing group")
				return deny(ReasonNotMember), nil
			}
			return Decision{}, fmt.Errorf("failed to check group membership: %w", err)
		}

		if role.Meets(requiredRole(action)) {
			return allow(), nil
		}

		log.Warn().
			Str("user_id", userID.String()).
			Str("resource_kind", string(ref.Kind)).
			Str("resource_id", ref.ID.String()).
			Str("user_role", string(role)).
			Str("action", string(action)).
			Msg("RBAC: insufficient role")
		return deny(ReasonInsufficientRole), nil
	}

	return deny(ReasonNoRelationship), nil
}
