package groups

import "errors"

var (
	// ErrGroupNotFound is returned when a group does not exist
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotMember is returned when the acting user is not a member of the group
	ErrNotMember = errors.New("user is not a member of this group")

	// ErrMembershipNotFound is returned when the target membership does not
	// exist. This is a normal lookup miss, not a fault.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrInsufficientRole is returned when the acting user's role does not
	// permit the operation
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrInvalidRole is returned when a role value is not one of viewer,
	// editor, admin
	ErrInvalidRole = errors.New("invalid group role")

	// ErrSelfEscalation is returned when a member tries to raise their own role
	ErrSelfEscalation = errors.New("cannot self-escalate")

	// ErrCreatorProtected is returned when someone other than the group
	// creator tries to alter or remove the creator's membership
	ErrCreatorProtected = errors.New("group creator's membership can only be changed by the creator")

	// ErrLastAdmin is returned when a role change would leave a sole-member
	// group without an admin. Removals never return it: the lifecycle
	// manager resolves the constraint by promotion or group deletion.
	ErrLastAdmin = errors.New("group cannot be left without an admin")
)
