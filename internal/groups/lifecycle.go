package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ChangeRole updates a member's role while maintaining the group invariants:
//
//   - changing another member's role requires the acting user to be an admin
//   - a member may change their own role only downwards
//   - the creator's membership may only be altered by the creator
//   - a non-empty group always keeps at least one admin; demoting the last
//     admin promotes the longest-standing other member in the same
//     transaction, and is rejected only when no other member exists
//
// Returns the member's previous role.
func (s *Service) ChangeRole(ctx context.Context, groupID, actorID, targetID uuid.UUID, newRole Role) (previousRole Role, err error) {
	if !newRole.IsValid() {
		return "", ErrInvalidRole
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	store := NewMembershipStore(tx)

	actor, err := store.Get(ctx, groupID, actorID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			return "", ErrNotMember
		}
		return "", err
	}

	target, err := store.GetForUpdate(ctx, groupID, targetID)
	if err != nil {
		return "", err
	}

	var creatorID uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT created_by_user_id FROM groups WHERE id = $1
	`, groupID).Scan(&creatorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrGroupNotFound
		}
		return "", fmt.Errorf("failed to load group: %w", err)
	}

	if targetID == creatorID && actorID != creatorID {
		return "", ErrCreatorProtected
	}

	if actorID == targetID {
		if newRole.Level() > target.Role.Level() {
			return "", ErrSelfEscalation
		}
	} else if actor.Role != RoleAdmin {
		return "", ErrInsufficientRole
	}

	if newRole == target.Role {
		return target.Role, tx.Commit(ctx)
	}

	// Demoting an admin may strip the group of its last one. Lock the full
	// membership set so two concurrent demotions cannot both pass the check.
	if target.Role == RoleAdmin && newRole != RoleAdmin {
		members, err := store.lockMembers(ctx, groupID)
		if err != nil {
			return "", err
		}

		if countAdmins(members) <= 1 {
			successor := pickSuccessor(members, targetID)
			if successor == nil {
				return "", ErrLastAdmin
			}
			if err := store.Upsert(ctx, groupID, successor.UserID, RoleAdmin); err != nil {
				return "", err
			}
			log.Info().
				Str("group_id", groupID.String()).
				Str("promoted_user_id", successor.UserID.String()).
				Msg("Promoted member to admin after last-admin demotion")
		}
	}

	if err := store.Upsert(ctx, groupID, targetID, newRole); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return target.Role, nil
}

// RemoveMember deletes a membership. Admins may remove anyone; any member
// may remove themself. Removals that would leave the group adminless are
// resolved inside the same transaction: the longest-standing remaining
// member is promoted, or the whole group is deleted when nobody remains.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, targetID uuid.UUID) (*RemovalOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	store := NewMembershipStore(tx)

	actor, err := store.Get(ctx, groupID, actorID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	if actorID != targetID && actor.Role != RoleAdmin {
		return nil, ErrInsufficientRole
	}

	var creatorID uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT created_by_user_id FROM groups WHERE id = $1
	`, groupID).Scan(&creatorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}

	if targetID == creatorID && actorID != creatorID {
		return nil, ErrCreatorProtected
	}

	// Lock the whole membership set up front: the admin-count decision below
	// must be serialized per group.
	members, err := store.lockMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	target := findMember(members, targetID)
	if target == nil {
		return nil, ErrMembershipNotFound
	}

	if err := store.Remove(ctx, groupID, targetID); err != nil {
		return nil, err
	}

	outcome := &RemovalOutcome{RemovedRole: target.Role}

	remaining := len(members) - 1
	if remaining == 0 {
		// Last member left: the group is deleted, cascading memberships and
		// invitations.
		if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
			return nil, fmt.Errorf("failed to delete empty group: %w", err)
		}
		outcome.GroupDeleted = true
	} else if target.Role == RoleAdmin && countAdmins(members) <= 1 {
		successor := pickSuccessor(members, targetID)
		if successor == nil {
			// Unreachable: remaining > 0 guarantees a successor candidate.
			return nil, fmt.Errorf("no successor found for group %s", groupID)
		}
		if err := store.Upsert(ctx, groupID, successor.UserID, RoleAdmin); err != nil {
			return nil, err
		}
		outcome.PromotedUserID = uuid.NullUUID{UUID: successor.UserID, Valid: true}
		log.Info().
			Str("group_id", groupID.String()).
			Str("removed_user_id", targetID.String()).
			Str("promoted_user_id", successor.UserID.String()).
			Msg("Promoted member to admin after last-admin removal")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return outcome, nil
}

func countAdmins(members []Membership) int {
	n := 0
	for _, m := range members {
		if m.Role == RoleAdmin {
			n++
		}
	}
	return n
}

func findMember(members []Membership, userID uuid.UUID) *Membership {
	for i := range members {
		if members[i].UserID == userID {
			return &members[i]
		}
	}
	return nil
}

// pickSuccessor returns the longest-standing member other than excluded.
// members is already ordered by (created_at, user_id), so the first
// non-excluded entry wins; the choice is deterministic.
func pickSuccessor(members []Membership, excluded uuid.UUID) *Membership {
	for i := range members {
		if members[i].UserID != excluded {
			return &members[i]
		}
	}
	return nil
}
