package invites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/audit"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/notify"
	"github.com/beehold/beehold/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateInviteRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,oneof=viewer editor admin"`
}

type CreateInviteResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	AcceptURL string    `json:"accept_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AcceptInviteResponse struct {
	GroupID         uuid.UUID `json:"group_id"`
	Role            string    `json:"role"`
	MembershipAdded bool      `json:"membership_added"`
}

// HandleCreateInvite issues an invitation for the group in the URL.
func HandleCreateInvite(svc *Service, grps *groups.Service, auditor *audit.Writer, notifier *notify.Client, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		var req CreateInviteRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, validationMessage(err))
			return
		}

		invite, token, err := svc.Create(ctx, groupID, userID, req.Email, groups.Role(req.Role))
		if err != nil {
			writeInviteError(w, r, err)
			return
		}

		if err := auditor.LogInviteCreated(ctx, groupID, userID, invite.ID, invite.Email, string(invite.Role)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		acceptURL := fmt.Sprintf("%s/invites/%s/accept", baseURL, token)

		if notifier.Enabled() {
			groupName := ""
			if g, err := grps.GetByID(ctx, groupID); err == nil {
				groupName = g.Name
			}
			go notifier.SendInviteNotice(context.WithoutCancel(ctx), notify.InviteNotice{
				GroupName: groupName,
				Email:     invite.Email,
				Role:      string(invite.Role),
				AcceptURL: acceptURL,
				ExpiresAt: invite.ExpiresAt.Format(time.RFC3339),
			})
		}

		log.Info().
			Str("group_id", groupID.String()).
			Str("invite_id", invite.ID.String()).
			Str("role", string(invite.Role)).
			Msg("Invite created")

		apperrors.WriteSuccess(w, r, http.StatusCreated, CreateInviteResponse{
			ID:        invite.ID,
			Email:     invite.Email,
			Role:      string(invite.Role),
			Token:     token,
			AcceptURL: acceptURL,
			ExpiresAt: invite.ExpiresAt,
		})
	}
}

// HandleListInvites lists the group's open invitations.
func HandleListInvites(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		items, err := svc.ListOpen(ctx, groupID, userID)
		if err != nil {
			writeInviteError(w, r, err)
			return
		}
		if items == nil {
			items = []ListItem{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": items,
		})
	}
}

// HandleCancelInvite withdraws an open invitation.
func HandleCancelInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}
		inviteID, err := uuid.Parse(chi.URLParam(r, "invite_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invite ID")
			return
		}

		if err := svc.Cancel(ctx, groupID, inviteID, userID); err != nil {
			writeInviteError(w, r, err)
			return
		}

		if err := auditor.LogInviteCancelled(ctx, groupID, userID, inviteID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"message": "Invite cancelled",
		})
	}
}

// HandleAcceptInvite redeems an invitation token for the authenticated user.
func HandleAcceptInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		token := chi.URLParam(r, "token")

		invite, created, err := svc.Accept(ctx, token, userID)
		if err != nil {
			writeInviteError(w, r, err)
			return
		}

		if created {
			if err := auditor.LogInviteAccepted(ctx, invite.GroupID, userID, invite.ID); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		log.Info().
			Str("group_id", invite.GroupID.String()).
			Str("invite_id", invite.ID.String()).
			Bool("membership_added", created).
			Msg("Invite accepted")

		apperrors.WriteSuccess(w, r, http.StatusOK, AcceptInviteResponse{
			GroupID:         invite.GroupID,
			Role:            string(invite.Role),
			MembershipAdded: created,
		})
	}
}

// HandleDeclineInvite settles an invitation as declined.
func HandleDeclineInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		token := chi.URLParam(r, "token")

		invite, err := svc.Decline(ctx, token, userID)
		if err != nil {
			writeInviteError(w, r, err)
			return
		}

		if err := auditor.LogInviteDeclined(ctx, invite.GroupID, userID, invite.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"message": "Invite declined",
		})
	}
}

func writeInviteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, groups.ErrNotMember):
		// Non-members learn nothing about the group.
		apperrors.WriteNotFound(w, r, "Group not found")
	case errors.Is(err, groups.ErrInsufficientRole):
		apperrors.WriteForbidden(w, r, "Admin role required")
	case errors.Is(err, groups.ErrInvalidRole):
		apperrors.WriteBadRequest(w, r, "Invalid role")
	case errors.Is(err, ErrDuplicateInvite):
		apperrors.WriteConflict(w, r, "An open invite already exists for this email")
	case errors.Is(err, ErrInviteNotFound):
		apperrors.WriteNotFound(w, r, "Invite not found")
	case errors.Is(err, ErrInviteExpired):
		apperrors.WriteGone(w, r, "Invite has expired")
	case errors.Is(err, ErrInviteNotActive):
		apperrors.WriteConflict(w, r, "Invite has already been settled")
	case errors.Is(err, ErrInviteEmailMismatch):
		apperrors.WriteForbidden(w, r, "Invite was issued to a different email address")
	default:
		log.Error().Err(err).Msg("Invite operation failed")
		apperrors.WriteInternalError(w, r, "Something went wrong")
	}
}

func validationMessage(err error) string {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs.Error()
	}
	return "Invalid request body"
}
