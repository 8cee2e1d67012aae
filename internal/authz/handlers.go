package authz

import (
	"errors"
	"net/http"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/resources"
	"github.com/beehold/beehold/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type DecideRequest struct {
	ResourceKind string `json:"resource_kind" validate:"required"`
	ResourceID   string `json:"resource_id" validate:"required,uuid"`
	Action       string `json:"action" validate:"required,oneof=read write administer"`
}

// HandleDecide answers POST /api/v1/authz/decide. It exposes the decision
// core to the surrounding application so handlers outside this service can
// authorize against the same rule.
func HandleDecide(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req DecideRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			var fieldErrs validation.FieldErrors
			if errors.As(err, &fieldErrs) {
				apperrors.WriteBadRequest(w, r, fieldErrs.Error())
				return
			}
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		kind, err := resources.ParseKind(req.ResourceKind)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Unknown resource kind")
			return
		}

		resourceID, err := uuid.Parse(req.ResourceID)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid resource ID")
			return
		}

		decision, err := engine.Decide(ctx, userID, resources.Ref{Kind: kind, ID: resourceID}, Action(req.Action))
		if err != nil {
			log.Error().Err(err).Msg("Failed to evaluate authorization decision")
			apperrors.WriteInternalError(w, r, "Failed to evaluate decision")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, decision)
	}
}
