package invites

import (
	"errors"
	"time"

	"github.com/beehold/beehold/internal/groups"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an invitation. The only transitions are
// invited -> accepted, invited -> declined, and invited -> expired; a
// settled invitation never changes again.
type Status string

const (
	StatusInvited  Status = "invited"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

var (
	ErrInviteNotFound      = errors.New("invite not found")
	ErrInviteExpired       = errors.New("invite expired")
	ErrInviteNotActive     = errors.New("invite already settled")
	ErrInviteEmailMismatch = errors.New("invite email does not match user")
	ErrDuplicateInvite     = errors.New("an open invite already exists for this email")
)

// Invite is a time-bounded, token-addressed offer to join a group
type Invite struct {
	ID               uuid.UUID     `db:"id"`
	GroupID          uuid.UUID     `db:"group_id"`
	Email            string        `db:"email"`
	Role             groups.Role   `db:"role"`
	Status           Status        `db:"status"`
	CreatedByUserID  uuid.UUID     `db:"created_by_user_id"`
	AcceptedByUserID uuid.NullUUID `db:"accepted_by_user_id"`
	CreatedAt        time.Time     `db:"created_at"`
	ExpiresAt        time.Time     `db:"expires_at"`
	SettledAt        *time.Time    `db:"settled_at"`
}

// IsValid reports whether the invite can still be accepted or declined at
// the given time.
func (i *Invite) IsValid(now time.Time) bool {
	return i.Status == StatusInvited && !now.After(i.ExpiresAt)
}

// ListItem is the shape returned when listing a group's open invites
type ListItem struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Email          string      `db:"email" json:"email"`
	Role           groups.Role `db:"role" json:"role"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time   `db:"expires_at" json:"expires_at"`
	CreatedByEmail string      `db:"created_by_email" json:"created_by_email"`
}
