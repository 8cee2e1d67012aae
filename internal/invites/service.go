package invites

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/beehold/beehold/internal/groups"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is the invitation validity window used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// openInviteIndex is the partial unique index enforcing one open invite per
// (group, email); its violation maps to ErrDuplicateInvite.
const openInviteIndex = "idx_group_invites_open"

// Service manages the invitation lifecycle that admits new group members.
type Service struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewService creates an invitation service. ttl <= 0 selects DefaultTTL.
func NewService(pool *pgxpool.Pool, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{pool: pool, ttl: ttl}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	if len(email) > 320 {
		return "", errors.New("email is too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", errors.New("invalid email address")
	}
	return strings.ToLower(email), nil
}

// requireAdmin verifies the acting user holds the admin role in the group
func (s *Service) requireAdmin(ctx context.Context, groupID, actorID uuid.UUID) error {
	role, err := groups.NewMembershipStore(s.pool).RoleOf(ctx, actorID, groupID)
	if err != nil {
		if errors.Is(err, groups.ErrMembershipNotFound) {
			return groups.ErrNotMember
		}
		return err
	}
	if role != groups.RoleAdmin {
		return groups.ErrInsufficientRole
	}
	return nil
}

// Create issues a new invitation. The acting user must be an admin of the
// group, and at most one open invitation may exist per (group, email): a
// live duplicate fails with ErrDuplicateInvite, while a stale one (overdue
// but not yet swept) is settled to expired in the same transaction.
//
// Returns the invitation and the plaintext token, which is never stored.
func (s *Service) Create(ctx context.Context, groupID, actorID uuid.UUID, email string, role groups.Role) (*Invite, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}

	if !role.IsValid() {
		return nil, "", groups.ErrInvalidRole
	}

	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var existingID uuid.UUID
	var existingExpiry time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, expires_at
		FROM group_invites
		WHERE group_id = $1 AND email = $2 AND status = $3
		FOR UPDATE
	`, groupID, email, StatusInvited).Scan(&existingID, &existingExpiry)
	switch {
	case err == nil:
		if existingExpiry.After(time.Now().UTC()) {
			return nil, "", ErrDuplicateInvite
		}
		// Stale open invite: settle it so the partial unique index admits
		// the replacement.
		if _, err := tx.Exec(ctx, `
			UPDATE group_invites
			SET status = $2, settled_at = NOW()
			WHERE id = $1
		`, existingID, StatusExpired); err != nil {
			return nil, "", fmt.Errorf("failed to expire stale invite: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No open invite; proceed.
	default:
		return nil, "", fmt.Errorf("failed to check for duplicate invite: %w", err)
	}

	var invite Invite
	for attempt := 0; attempt < 3; attempt++ {
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", err
		}

		expiresAt := time.Now().UTC().Add(s.ttl)

		err = tx.QueryRow(ctx, `
			INSERT INTO group_invites (
			  group_id, email, role, token_hash, created_by_user_id, expires_at
			)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, group_id, email, role, status, created_by_user_id, created_at, expires_at
		`, groupID, email, role, tokenHash, actorID, expiresAt).Scan(
			&invite.ID,
			&invite.GroupID,
			&invite.Email,
			&invite.Role,
			&invite.Status,
			&invite.CreatedByUserID,
			&invite.CreatedAt,
			&invite.ExpiresAt,
		)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
			}
			return &invite, token, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == openInviteIndex {
				// Lost a race with a concurrent Create for the same email.
				return nil, "", ErrDuplicateInvite
			}
			// Token hash collision (vanishingly unlikely); retry.
			continue
		}
		return nil, "", fmt.Errorf("failed to create invite: %w", err)
	}

	return nil, "", fmt.Errorf("failed to create invite: token collision retry exhausted")
}

// Accept settles an invitation as accepted and admits the user into the
// group. Accepting an already accepted invitation is idempotent: no second
// membership is created and the call succeeds. A membership that already
// exists (however it was created) is left untouched, so a member's current
// role is never downgraded by a late accept.
//
// Returns the invitation and whether a membership row was created.
func (s *Service) Accept(ctx context.Context, token string, userID uuid.UUID) (*Invite, bool, error) {
	invite, created, err := s.settle(ctx, token, userID, StatusAccepted)
	return invite, created, err
}

// Decline settles an invitation as declined. The same preconditions as
// Accept apply; no membership is touched.
func (s *Service) Decline(ctx context.Context, token string, userID uuid.UUID) (*Invite, error) {
	invite, _, err := s.settle(ctx, token, userID, StatusDeclined)
	return invite, err
}

func (s *Service) settle(ctx context.Context, token string, userID uuid.UUID, outcome Status) (*Invite, bool, error) {
	if !ValidateTokenFormat(token) {
		return nil, false, ErrInviteNotFound
	}
	tokenHash := HashToken(token)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var invite Invite
	err = tx.QueryRow(ctx, `
		SELECT id, group_id, email, role, status, created_by_user_id, accepted_by_user_id,
		       created_at, expires_at, settled_at
		FROM group_invites
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash).Scan(
		&invite.ID,
		&invite.GroupID,
		&invite.Email,
		&invite.Role,
		&invite.Status,
		&invite.CreatedByUserID,
		&invite.AcceptedByUserID,
		&invite.CreatedAt,
		&invite.ExpiresAt,
		&invite.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrInviteNotFound
		}
		return nil, false, fmt.Errorf("failed to load invite: %w", err)
	}

	var userEmail string
	err = tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&userEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("user %s not found", userID)
		}
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}
	emailMatches := strings.EqualFold(userEmail, invite.Email)

	switch invite.Status {
	case StatusAccepted:
		if outcome == StatusAccepted {
			if !emailMatches {
				return nil, false, ErrInviteEmailMismatch
			}
			// Re-accept of a settled invitation: succeed without touching
			// anything.
			return &invite, false, tx.Commit(ctx)
		}
		return nil, false, ErrInviteNotActive
	case StatusDeclined:
		return nil, false, ErrInviteNotActive
	case StatusExpired:
		return nil, false, ErrInviteExpired
	}

	if time.Now().UTC().After(invite.ExpiresAt) {
		// Settle lazily so the row stops blocking re-invites even before the
		// sweep runs.
		if _, err := tx.Exec(ctx, `
			UPDATE group_invites
			SET status = $2, settled_at = NOW()
			WHERE id = $1
		`, invite.ID, StatusExpired); err != nil {
			return nil, false, fmt.Errorf("failed to expire invite: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, false, ErrInviteExpired
	}

	if !emailMatches {
		return nil, false, ErrInviteEmailMismatch
	}

	membershipCreated := false
	if outcome == StatusAccepted {
		membershipCreated, err = groups.NewMembershipStore(tx).InsertIfAbsent(ctx, invite.GroupID, userID, invite.Role)
		if err != nil {
			return nil, false, err
		}
		if !membershipCreated {
			log.Debug().
				Str("group_id", invite.GroupID.String()).
				Str("user_id", userID.String()).
				Msg("Invite accepted by an existing member; membership unchanged")
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE group_invites
		SET status = $2, accepted_by_user_id = $3, settled_at = NOW()
		WHERE id = $1 AND status = $4
	`, invite.ID, outcome, acceptedBy(outcome, userID), StatusInvited)
	if err != nil {
		return nil, false, fmt.Errorf("failed to settle invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, ErrInviteNotActive
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	invite.Status = outcome
	return &invite, membershipCreated, nil
}

func acceptedBy(outcome Status, userID uuid.UUID) uuid.NullUUID {
	if outcome == StatusAccepted {
		return uuid.NullUUID{UUID: userID, Valid: true}
	}
	return uuid.NullUUID{}
}

// Cancel settles an open invitation as expired. Admin-only.
func (s *Service) Cancel(ctx context.Context, groupID, inviteID, actorID uuid.UUID) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE group_invites
		SET status = $3, settled_at = NOW()
		WHERE id = $1 AND group_id = $2 AND status = $4
	`, inviteID, groupID, StatusExpired, StatusInvited)
	if err != nil {
		return fmt.Errorf("failed to cancel invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}

	return nil
}

// ListOpen returns the group's open, unexpired invitations. Admin-only.
func (s *Service) ListOpen(ctx context.Context, groupID, actorID uuid.UUID) ([]ListItem, error) {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
		  i.id,
		  i.email,
		  i.role,
		  i.created_at,
		  i.expires_at,
		  u.email AS created_by_email
		FROM group_invites i
		INNER JOIN users u ON u.id = i.created_by_user_id
		WHERE i.group_id = $1
		  AND i.status = $2
		  AND i.expires_at > NOW()
		ORDER BY i.created_at DESC
	`, groupID, StatusInvited)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item.ID, &item.Email, &item.Role, &item.CreatedAt, &item.ExpiresAt, &item.CreatedByEmail); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}

	return items, nil
}

// ExpireOverdue settles every open invitation whose validity window has
// passed. Idempotent; called by the scheduled sweep.
//
// Returns the number of invitations expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE group_invites
		SET status = $1, settled_at = NOW()
		WHERE status = $2 AND expires_at <= NOW()
	`, StatusExpired, StatusInvited)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue invites: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunExpirySweep executes ExpireOverdue and logs the result. This is the
// entry point called by the cron scheduler.
func (s *Service) RunExpirySweep(ctx context.Context) error {
	start := time.Now()

	expired, err := s.ExpireOverdue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Invite expiry sweep failed")
		return err
	}

	log.Info().
		Int64("invites_expired", expired).
		Dur("duration", time.Since(start)).
		Msg("Invite expiry sweep completed")

	return nil
}
