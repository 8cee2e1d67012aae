package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/audit"
	"github.com/beehold/beehold/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type SignupResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required"`
}

// HandleSignup processes user registration
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SignupRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, validationMessage(err))
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		passwordHash, err := HashPassword(req.Password)
		if errors.Is(err, ErrPasswordTooLong) {
			apperrors.WriteBadRequest(w, r, "Password must be at most 72 bytes")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		userID := uuid.New()
		_, err = pool.Exec(ctx, `
			INSERT INTO users (id, email, password_hash)
			VALUES ($1, $2, $3)
		`, userID, email, passwordHash)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}

			log.Error().Err(err).Str("email", email).Msg("Failed to insert user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(ctx, userID, email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		csrfToken, err := GenerateCSRFToken()
		if err == nil {
			SetCSRFCookie(w, csrfToken, isProduction)
		}

		log.Info().
			Str("user_id", userID.String()).
			Str("email", email).
			Msg("User signed up")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SignupResponse{
			UserID: userID,
			Email:  email,
		})
	}
}

// HandleLogin processes user login
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, validationMessage(err))
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		var userID uuid.UUID
		var passwordHash string
		err := pool.QueryRow(ctx, `
			SELECT id, password_hash FROM users WHERE email = $1
		`, email).Scan(&userID, &passwordHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Same response as a bad password so accounts can't be enumerated.
				recordLoginFailure(ctx, auditor, email, r.RemoteAddr)
				apperrors.WriteUnauthorized(w, r, "Invalid email or password")
				return
			}
			log.Error().Err(err).Msg("Failed to load user")
			apperrors.WriteInternalError(w, r, "Failed to log in")
			return
		}

		if err := VerifyPassword(passwordHash, req.Password); err != nil {
			recordLoginFailure(ctx, auditor, email, r.RemoteAddr)
			apperrors.WriteUnauthorized(w, r, "Invalid email or password")
			return
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		csrfToken, err := GenerateCSRFToken()
		if err == nil {
			SetCSRFCookie(w, csrfToken, isProduction)
		}

		log.Info().Str("user_id", userID.String()).Msg("User logged in")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"user_id": userID,
			"email":   email,
		})
	}
}

// HandleLogout clears the session cookie
func HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w)
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"logged_out": true,
		})
	}
}

func recordLoginFailure(ctx context.Context, auditor *audit.Writer, email, ip string) {
	if err := auditor.LogLoginFailed(ctx, email, ip); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}

func validationMessage(err error) string {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs.Error()
	}
	return "Invalid request body"
}
