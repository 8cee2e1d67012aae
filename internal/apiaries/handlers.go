package apiaries

import (
	"errors"
	"net/http"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/audit"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateApiaryRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=200"`
	Location  string   `json:"location" validate:"max=500"`
	Notes     string   `json:"notes" validate:"max=5000"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	GroupID   string   `json:"group_id" validate:"omitempty,uuid"`
}

type UpdateApiaryRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=200"`
	Location  string   `json:"location" validate:"max=500"`
	Notes     string   `json:"notes" validate:"max=5000"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type SetSharingRequest struct {
	GroupID string `json:"group_id" validate:"omitempty,uuid"`
	Shared  bool   `json:"shared"`
}

type CreateHiveRequest struct {
	Label string `json:"label" validate:"required,min=1,max=120"`
}

type CreateInspectionRequest struct {
	InspectedOn string `json:"inspected_on" validate:"required,datetime=2006-01-02"`
	QueenSeen   bool   `json:"queen_seen"`
	Notes       string `json:"notes" validate:"max=5000"`
}

// HandleCreateApiary creates an apiary owned by the caller. A group may be
// attached at creation time, but the caller must belong to it.
func HandleCreateApiary(svc *Service, memberships *groups.MembershipStore, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateApiaryRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		var groupID uuid.NullUUID
		if req.GroupID != "" {
			id, err := uuid.Parse(req.GroupID)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid group ID")
				return
			}
			if _, err := memberships.RoleOf(ctx, userID, id); err != nil {
				if errors.Is(err, groups.ErrMembershipNotFound) {
					apperrors.WriteNotFound(w, r, "Group not found")
					return
				}
				log.Error().Err(err).Msg("Failed to check membership")
				apperrors.WriteInternalError(w, r, "Something went wrong")
				return
			}
			groupID = uuid.NullUUID{UUID: id, Valid: true}
		}

		apiary, err := svc.Create(ctx, userID, CreateApiaryParams{
			Name:      req.Name,
			Location:  req.Location,
			Notes:     req.Notes,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			GroupID:   groupID,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create apiary")
			apperrors.WriteInternalError(w, r, "Failed to create apiary")
			return
		}

		if err := auditor.LogApiaryCreated(ctx, userID, apiary.ID, apiary.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, apiary)
	}
}

// HandleListApiaries lists the apiaries visible to the caller.
func HandleListApiaries(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		apiaries, err := svc.ListVisible(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list apiaries")
			apperrors.WriteInternalError(w, r, "Failed to list apiaries")
			return
		}
		if apiaries == nil {
			apiaries = []Apiary{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"apiaries": apiaries,
		})
	}
}

// HandleGetApiary returns one apiary. Authorization happens upstream.
func HandleGetApiary(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		apiary, err := svc.Get(r.Context(), apiaryID)
		if err != nil {
			writeApiaryError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, apiary)
	}
}

// HandleUpdateApiary rewrites an apiary's descriptive fields.
func HandleUpdateApiary(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		var req UpdateApiaryRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		apiary, err := svc.Update(r.Context(), apiaryID, UpdateApiaryParams{
			Name:      req.Name,
			Location:  req.Location,
			Notes:     req.Notes,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
		if err != nil {
			writeApiaryError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, apiary)
	}
}

// HandleSetSharing turns the apiary's group sharing grant on or off.
func HandleSetSharing(svc *Service, memberships *groups.MembershipStore, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		var req SetSharingRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		var groupID uuid.NullUUID
		if req.GroupID != "" {
			id, err := uuid.Parse(req.GroupID)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid group ID")
				return
			}
			if _, err := memberships.RoleOf(ctx, userID, id); err != nil {
				if errors.Is(err, groups.ErrMembershipNotFound) {
					apperrors.WriteNotFound(w, r, "Group not found")
					return
				}
				log.Error().Err(err).Msg("Failed to check membership")
				apperrors.WriteInternalError(w, r, "Something went wrong")
				return
			}
			groupID = uuid.NullUUID{UUID: id, Valid: true}
		}

		apiary, err := svc.SetSharing(ctx, apiaryID, groupID, req.Shared)
		if err != nil {
			if errors.Is(err, ErrGroupRequired) {
				apperrors.WriteBadRequest(w, r, "Attach a group before sharing")
				return
			}
			writeApiaryError(w, r, err)
			return
		}

		var auditGroup *uuid.UUID
		if apiary.GroupID.Valid {
			g := apiary.GroupID.UUID
			auditGroup = &g
		}
		if err := auditor.LogApiarySharingSet(ctx, userID, apiary.ID, auditGroup, apiary.SharedWithGroup); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("apiary_id", apiary.ID.String()).
			Bool("shared", apiary.SharedWithGroup).
			Msg("Apiary sharing updated")

		apperrors.WriteSuccess(w, r, http.StatusOK, apiary)
	}
}

// HandleDeleteApiary removes an apiary and everything beneath it.
func HandleDeleteApiary(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		if err := svc.Delete(r.Context(), apiaryID); err != nil {
			writeApiaryError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"message": "Apiary deleted",
		})
	}
}

// HandleCreateHive adds a hive to the apiary in the URL.
func HandleCreateHive(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		var req CreateHiveRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		hive, err := svc.CreateHive(r.Context(), apiaryID, req.Label)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create hive")
			apperrors.WriteInternalError(w, r, "Failed to create hive")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, hive)
	}
}

// HandleListHives lists the apiary's hives.
func HandleListHives(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiaryID, err := uuid.Parse(chi.URLParam(r, "apiary_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid apiary ID")
			return
		}

		hives, err := svc.ListHives(r.Context(), apiaryID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list hives")
			apperrors.WriteInternalError(w, r, "Failed to list hives")
			return
		}
		if hives == nil {
			hives = []Hive{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"hives": hives,
		})
	}
}

// HandleCreateInspection records an inspection against the hive in the URL.
func HandleCreateInspection(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		hiveID, err := uuid.Parse(chi.URLParam(r, "hive_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid hive ID")
			return
		}

		var req CreateInspectionRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, decodeMessage(err))
			return
		}

		insp, err := svc.CreateInspection(ctx, hiveID, userID, CreateInspectionParams{
			InspectedOn: req.InspectedOn,
			QueenSeen:   req.QueenSeen,
			Notes:       req.Notes,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create inspection")
			apperrors.WriteInternalError(w, r, "Failed to create inspection")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, insp)
	}
}

// HandleListInspections lists the hive's inspections.
func HandleListInspections(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hiveID, err := uuid.Parse(chi.URLParam(r, "hive_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid hive ID")
			return
		}

		inspections, err := svc.ListInspections(r.Context(), hiveID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list inspections")
			apperrors.WriteInternalError(w, r, "Failed to list inspections")
			return
		}
		if inspections == nil {
			inspections = []Inspection{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"inspections": inspections,
		})
	}
}

func writeApiaryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrApiaryNotFound):
		apperrors.WriteNotFound(w, r, "Apiary not found")
	case errors.Is(err, ErrHiveNotFound):
		apperrors.WriteNotFound(w, r, "Hive not found")
	default:
		log.Error().Err(err).Msg("Apiary operation failed")
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
