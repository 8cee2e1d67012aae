package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides group lookup and lifecycle operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new group service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Memberships returns a membership store reading through the pool
func (s *Service) Memberships() *MembershipStore {
	return NewMembershipStore(s.pool)
}

// GetByID retrieves a group by ID
func (s *Service) GetByID(ctx context.Context, groupID uuid.UUID) (*Group, error) {
	var g Group
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_by_user_id, created_at, updated_at
		FROM groups
		WHERE id = $1
	`, groupID).Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.CreatedByUserID,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return &g, nil
}

// ListUserGroups retrieves all groups the user is a member of, with roles
func (s *Service) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]GroupWithRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.name, g.description, g.created_by_user_id, g.created_at, g.updated_at, m.role
		FROM groups g
		INNER JOIN group_memberships m ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	defer rows.Close()

	var result []GroupWithRole
	for rows.Next() {
		var g GroupWithRole
		err := rows.Scan(
			&g.ID,
			&g.Name,
			&g.Description,
			&g.CreatedByUserID,
			&g.CreatedAt,
			&g.UpdatedAt,
			&g.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		result = append(result, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}

	return result, nil
}

// CreateWithAdmin creates a new group and makes the creator an admin.
// Both rows are written in one transaction so a group is never observable
// without its founding admin.
func (s *Service) CreateWithAdmin(ctx context.Context, name, description string, creatorID uuid.UUID) (*Group, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var g Group
	err = tx.QueryRow(ctx, `
		INSERT INTO groups (name, description, created_by_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, created_by_user_id, created_at, updated_at
	`, name, description, creatorID).Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.CreatedByUserID,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	if err := NewMembershipStore(tx).Upsert(ctx, g.ID, creatorID, RoleAdmin); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &g, nil
}

// Delete removes a group and, through cascades, its memberships and
// invitations. Only the group creator may delete the group.
func (s *Service) Delete(ctx context.Context, groupID, actorID uuid.UUID) error {
	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatedByUserID != actorID {
		return ErrCreatorProtected
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}

	return nil
}
