package authz

import (
	"net/http"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/resources"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RefFunc extracts the resource reference to authorize from a request.
type RefFunc func(r *http.Request) (resources.Ref, error)

// RefFromURLParam builds a RefFunc reading the resource ID from a chi URL
// parameter for a fixed kind.
func RefFromURLParam(kind resources.Kind, param string) RefFunc {
	return func(r *http.Request) (resources.Ref, error) {
		id, err := uuid.Parse(chi.URLParam(r, param))
		if err != nil {
			return resources.Ref{}, err
		}
		return resources.Ref{Kind: kind, ID: id}, nil
	}
}

// Require guards a handler with an authorization decision. The request only
// reaches the wrapped handler on an allow; denials answer 404 when no
// relationship exists (hiding resource existence) and 403 otherwise.
func Require(engine *Engine, action Action, refFn RefFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.GetUserID(r.Context())

			ref, err := refFn(r)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid resource ID")
				return
			}

			decision, err := engine.Decide(r.Context(), userID, ref, action)
			if err != nil {
				log.Error().Err(err).
					Str("resource_kind", string(ref.Kind)).
					Str("resource_id", ref.ID.String()).
					Msg("Authorization check failed")
				apperrors.WriteInternalError(w, r, "Authorization check failed")
				return
			}

			if !decision.Allowed {
				if decision.Reason == ReasonInsufficientRole {
					apperrors.WriteForbidden(w, r, "Insufficient permissions")
					return
				}
				apperrors.WriteNotFound(w, r, "Resource not found")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
