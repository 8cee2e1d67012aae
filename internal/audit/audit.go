package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup        = "user.signup"
	EventLoginFailed       = "auth.login_failed"
	EventGroupCreated      = "group.created"
	EventGroupDeleted      = "group.deleted"
	EventInviteCreated     = "group.invite_created"
	EventInviteAccepted    = "group.invite_accepted"
	EventInviteDeclined    = "group.invite_declined"
	EventInviteCancelled   = "group.invite_cancelled"
	EventMemberRoleUpdated = "group.member_role_updated"
	EventMemberRemoved     = "group.member_removed"
	EventMemberPromoted    = "group.member_promoted"
	EventApiaryCreated     = "apiary.created"
	EventApiarySharingSet  = "apiary.sharing_updated"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	GroupID     uuid.NullUUID          `db:"group_id" json:"group_id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id" json:"actor_user_id"`
	Action      string                 `db:"action" json:"action"`
	Meta        map[string]interface{} `db:"meta" json:"meta"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	GroupID     *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (group_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.GroupID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("group_id", params.GroupID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogGroupCreated(ctx context.Context, groupID, actorID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventGroupCreated,
		Meta: map[string]interface{}{
			"name": name,
		},
	})
}

func (w *Writer) LogGroupDeleted(ctx context.Context, groupID, actorID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventGroupDeleted,
	})
}

func (w *Writer) LogInviteCreated(ctx context.Context, groupID, actorID, inviteID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventInviteCreated,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
			"email":     email,
			"role":      role,
		},
	})
}

func (w *Writer) LogInviteAccepted(ctx context.Context, groupID, actorID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventInviteAccepted,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogInviteDeclined(ctx context.Context, groupID, actorID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventInviteDeclined,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogInviteCancelled(ctx context.Context, groupID, actorID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventInviteCancelled,
		Meta: map[string]interface{}{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogMemberRoleUpdated(ctx context.Context, groupID, actorID, targetID uuid.UUID, previousRole, newRole string) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventMemberRoleUpdated,
		Meta: map[string]interface{}{
			"target_user_id": targetID.String(),
			"previous_role":  previousRole,
			"new_role":       newRole,
		},
	})
}

func (w *Writer) LogMemberRemoved(ctx context.Context, groupID, actorID, targetID uuid.UUID, removedRole string) error {
	return w.Log(ctx, LogParams{
		GroupID:     &groupID,
		ActorUserID: &actorID,
		Action:      EventMemberRemoved,
		Meta: map[string]interface{}{
			"target_user_id": targetID.String(),
			"removed_role":   removedRole,
		},
	})
}

func (w *Writer) LogMemberPromoted(ctx context.Context, groupID, promotedID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		GroupID: &groupID,
		Action:  EventMemberPromoted,
		Meta: map[string]interface{}{
			"promoted_user_id": promotedID.String(),
		},
	})
}

func (w *Writer) LogApiaryCreated(ctx context.Context, actorID, apiaryID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		Action:      EventApiaryCreated,
		Meta: map[string]interface{}{
			"apiary_id": apiaryID.String(),
			"name":      name,
		},
	})
}

func (w *Writer) LogApiarySharingSet(ctx context.Context, actorID, apiaryID uuid.UUID, groupID *uuid.UUID, shared bool) error {
	meta := map[string]interface{}{
		"apiary_id": apiaryID.String(),
		"shared":    shared,
	}
	if groupID != nil {
		meta["group_id"] = groupID.String()
	}
	return w.Log(ctx, LogParams{
		GroupID:     groupID,
		ActorUserID: &actorID,
		Action:      EventApiarySharingSet,
		Meta:        meta,
	})
}
