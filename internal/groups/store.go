package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/beehold/beehold/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MembershipStore is the data-access layer for group memberships. It holds
// no authorization logic; callers decide what a lookup miss means.
//
// It runs over a db.Querier so the same store works against the pool for
// plain reads and against a transaction when an operation needs row locks.
type MembershipStore struct {
	q db.Querier
}

// NewMembershipStore creates a membership store over the given querier
func NewMembershipStore(q db.Querier) *MembershipStore {
	return &MembershipStore{q: q}
}

// Get retrieves the membership of a user in a group.
// Returns ErrMembershipNotFound if no such membership exists.
func (s *MembershipStore) Get(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error) {
	return s.get(ctx, groupID, userID, false)
}

// GetForUpdate retrieves a membership and locks its row for the duration of
// the surrounding transaction. Only meaningful when the store wraps a pgx.Tx.
func (s *MembershipStore) GetForUpdate(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error) {
	return s.get(ctx, groupID, userID, true)
}

func (s *MembershipStore) get(ctx context.Context, groupID, userID uuid.UUID, forUpdate bool) (*Membership, error) {
	query := `
		SELECT group_id, user_id, role, created_at, updated_at
		FROM group_memberships
		WHERE group_id = $1 AND user_id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var m Membership
	err := s.q.QueryRow(ctx, query, groupID, userID).Scan(
		&m.GroupID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}

// RoleOf returns the user's role in a group.
// Returns ErrMembershipNotFound if the user is not a member.
func (s *MembershipStore) RoleOf(ctx context.Context, userID, groupID uuid.UUID) (Role, error) {
	var role Role
	err := s.q.QueryRow(ctx, `
		SELECT role FROM group_memberships
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMembershipNotFound
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}

	return role, nil
}

// Upsert creates the membership or updates its role if it already exists
func (s *MembershipStore) Upsert(ctx context.Context, groupID, userID uuid.UUID, role Role) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO group_memberships (group_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`, groupID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}

	return nil
}

// InsertIfAbsent creates the membership only when the user is not already a
// member. Returns true when a row was created.
func (s *MembershipStore) InsertIfAbsent(ctx context.Context, groupID, userID uuid.UUID, role Role) (bool, error) {
	if !role.IsValid() {
		return false, ErrInvalidRole
	}

	tag, err := s.q.Exec(ctx, `
		INSERT INTO group_memberships (group_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to insert membership: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Remove deletes the membership.
// Returns ErrMembershipNotFound if no row was deleted.
func (s *MembershipStore) Remove(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM group_memberships
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}

	return nil
}

// CountByRole returns the number of members holding the given role
func (s *MembershipStore) CountByRole(ctx context.Context, groupID uuid.UUID, role Role) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_memberships
		WHERE group_id = $1 AND role = $2
	`, groupID, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members by role: %w", err)
	}

	return count, nil
}

// ListMembers retrieves all members of a group with their account details
func (s *MembershipStore) ListMembers(ctx context.Context, groupID uuid.UUID) ([]MemberInfo, error) {
	rows, err := s.q.Query(ctx, `
		SELECT m.user_id, u.email, m.role, m.created_at
		FROM group_memberships m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY m.created_at ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var member MemberInfo
		if err := rows.Scan(&member.UserID, &member.Email, &member.Role, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// lockMembers locks every membership row of the group, serializing
// admin-count maintenance per group. Must run inside a transaction.
func (s *MembershipStore) lockMembers(ctx context.Context, groupID uuid.UUID) ([]Membership, error) {
	rows, err := s.q.Query(ctx, `
		SELECT group_id, user_id, role, created_at, updated_at
		FROM group_memberships
		WHERE group_id = $1
		ORDER BY created_at ASC, user_id ASC
		FOR UPDATE
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock memberships: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership rows: %w", err)
	}

	return members, nil
}
