package groups

import (
	"errors"
	"net/http"
	"time"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/audit"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=viewer editor admin"`
}

type GroupResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type RemoveMemberResponse struct {
	Removed        bool       `json:"removed"`
	RemovedRole    string     `json:"removed_role"`
	PromotedUserID *uuid.UUID `json:"promoted_user_id,omitempty"`
	GroupDeleted   bool       `json:"group_deleted"`
}

// HandleCreateGroup creates a group with the caller as its admin.
func HandleCreateGroup(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateGroupRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		group, err := svc.CreateWithAdmin(ctx, req.Name, req.Description, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create group")
			apperrors.WriteInternalError(w, r, "Failed to create group")
			return
		}

		if err := auditor.LogGroupCreated(ctx, group.ID, userID, group.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("group_id", group.ID.String()).
			Str("user_id", userID.String()).
			Msg("Group created")

		apperrors.WriteSuccess(w, r, http.StatusCreated, GroupResponse{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			Role:        string(RoleAdmin),
			CreatedAt:   group.CreatedAt,
		})
	}
}

// HandleListGroups lists the groups the caller belongs to.
func HandleListGroups(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		memberships, err := svc.ListUserGroups(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list groups")
			apperrors.WriteInternalError(w, r, "Failed to list groups")
			return
		}

		resp := make([]GroupResponse, 0, len(memberships))
		for _, m := range memberships {
			resp = append(resp, GroupResponse{
				ID:          m.ID,
				Name:        m.Name,
				Description: m.Description,
				Role:        string(m.Role),
				CreatedAt:   m.CreatedAt,
			})
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"groups": resp,
		})
	}
}

// HandleGetGroup returns a group's details to one of its members.
func HandleGetGroup(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		role, err := svc.Memberships().RoleOf(ctx, userID, groupID)
		if err != nil {
			if errors.Is(err, ErrMembershipNotFound) {
				apperrors.WriteNotFound(w, r, "Group not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Something went wrong")
			return
		}

		group, err := svc.GetByID(ctx, groupID)
		if err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				apperrors.WriteNotFound(w, r, "Group not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load group")
			apperrors.WriteInternalError(w, r, "Something went wrong")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, GroupResponse{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			Role:        string(role),
			CreatedAt:   group.CreatedAt,
		})
	}
}

// HandleListMembers lists a group's members. Any member may look.
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		if _, err := svc.Memberships().RoleOf(ctx, userID, groupID); err != nil {
			if errors.Is(err, ErrMembershipNotFound) {
				apperrors.WriteNotFound(w, r, "Group not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Something went wrong")
			return
		}

		members, err := svc.Memberships().ListMembers(ctx, groupID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}
		if members == nil {
			members = []MemberInfo{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleChangeRole updates a member's role.
func HandleChangeRole(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}
		targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		var req ChangeRoleRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}
		newRole := Role(req.Role)

		previousRole, err := svc.ChangeRole(ctx, groupID, userID, targetID, newRole)
		if err != nil {
			writeGroupError(w, r, err)
			return
		}

		if previousRole != newRole {
			if err := auditor.LogMemberRoleUpdated(ctx, groupID, userID, targetID, string(previousRole), string(newRole)); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		log.Info().
			Str("group_id", groupID.String()).
			Str("target_user_id", targetID.String()).
			Str("previous_role", string(previousRole)).
			Str("new_role", string(newRole)).
			Msg("Member role updated")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"previous_role": string(previousRole),
			"role":          string(newRole),
		})
	}
}

// HandleRemoveMember removes a member, covering self-leave as well.
func HandleRemoveMember(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}
		targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		outcome, err := svc.RemoveMember(ctx, groupID, userID, targetID)
		if err != nil {
			writeGroupError(w, r, err)
			return
		}

		if err := auditor.LogMemberRemoved(ctx, groupID, userID, targetID, string(outcome.RemovedRole)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		if outcome.PromotedUserID.Valid {
			if err := auditor.LogMemberPromoted(ctx, groupID, outcome.PromotedUserID.UUID); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}
		if outcome.GroupDeleted {
			if err := auditor.LogGroupDeleted(ctx, groupID, userID); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		resp := RemoveMemberResponse{
			Removed:      true,
			RemovedRole:  string(outcome.RemovedRole),
			GroupDeleted: outcome.GroupDeleted,
		}
		if outcome.PromotedUserID.Valid {
			promoted := outcome.PromotedUserID.UUID
			resp.PromotedUserID = &promoted
		}

		log.Info().
			Str("group_id", groupID.String()).
			Str("target_user_id", targetID.String()).
			Bool("group_deleted", outcome.GroupDeleted).
			Msg("Member removed")

		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleDeleteGroup deletes a group and everything hanging off it.
func HandleDeleteGroup(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		if err := svc.Delete(ctx, groupID, userID); err != nil {
			writeGroupError(w, r, err)
			return
		}

		if err := auditor.LogGroupDeleted(ctx, groupID, userID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("group_id", groupID.String()).
			Str("user_id", userID.String()).
			Msg("Group deleted")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"message": "Group deleted",
		})
	}
}

// HandleGroupAudit lists the group's recent audit trail. Admin-only.
func HandleGroupAudit(svc *Service, reader *audit.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		groupID, err := uuid.Parse(chi.URLParam(r, "group_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid group ID")
			return
		}

		role, err := svc.Memberships().RoleOf(ctx, userID, groupID)
		if err != nil {
			if errors.Is(err, ErrMembershipNotFound) {
				apperrors.WriteNotFound(w, r, "Group not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Something went wrong")
			return
		}
		if role != RoleAdmin {
			apperrors.WriteForbidden(w, r, "Admin role required")
			return
		}

		entries, err := reader.ListByGroup(ctx, groupID, 100)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit entries")
			apperrors.WriteInternalError(w, r, "Failed to list audit entries")
			return
		}
		if entries == nil {
			entries = []audit.ListItem{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"entries": entries,
		})
	}
}

func writeGroupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		apperrors.WriteNotFound(w, r, "Group not found")
	case errors.Is(err, ErrNotMember):
		apperrors.WriteNotFound(w, r, "Group not found")
	case errors.Is(err, ErrMembershipNotFound):
		apperrors.WriteNotFound(w, r, "Member not found")
	case errors.Is(err, ErrInsufficientRole):
		apperrors.WriteForbidden(w, r, "Admin role required")
	case errors.Is(err, ErrInvalidRole):
		apperrors.WriteBadRequest(w, r, "Invalid role")
	case errors.Is(err, ErrSelfEscalation):
		apperrors.WriteForbidden(w, r, "You cannot raise your own role")
	case errors.Is(err, ErrCreatorProtected):
		apperrors.WriteForbidden(w, r, "The group creator's membership can only be changed by the creator")
	case errors.Is(err, ErrLastAdmin):
		apperrors.WriteConflict(w, r, "A group must keep at least one admin")
	default:
		log.Error().Err(err).Msg("Group operation failed")
		apperrors.WriteInternalError(w, r, "Something went wrong")
	}
}

func decodeMessage(err error) string {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs.Error()
	}
	return "Invalid request body"
}
