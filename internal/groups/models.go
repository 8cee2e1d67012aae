package groups

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's permission level within a group.
// Roles are totally ordered: Viewer < Editor < Admin.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// IsValid returns true if the role is one of the known values
func (r Role) IsValid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// Level returns the role's position in the hierarchy (higher = more permissions).
// Unknown roles map to 0 and never satisfy any threshold.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Meets returns true if the role satisfies the required role threshold
func (r Role) Meets(required Role) bool {
	if !r.IsValid() || !required.IsValid() {
		return false
	}
	return r.Level() >= required.Level()
}

// Group is a named collection of users collaborating on shared resources
type Group struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	CreatedByUserID uuid.UUID `db:"created_by_user_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Membership is the (user, group, role) relation granting delegated rights
type Membership struct {
	GroupID   uuid.UUID `db:"group_id"`
	UserID    uuid.UUID `db:"user_id"`
	Role      Role      `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GroupWithRole combines group information with the user's role
type GroupWithRole struct {
	Group
	Role Role `db:"role"`
}

// MemberInfo represents a member of a group with their account details
type MemberInfo struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"joined_at"`
}

// RemovalOutcome reports what a member removal did beyond deleting the
// membership: a promotion applied to keep the group administered, or the
// deletion of the whole group when the last member left.
type RemovalOutcome struct {
	RemovedRole    Role
	PromotedUserID uuid.NullUUID
	GroupDeleted   bool
}
