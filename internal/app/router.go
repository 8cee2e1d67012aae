package app

import (
	"net/http"
	"time"

	"github.com/beehold/beehold/internal/apiaries"
	"github.com/beehold/beehold/internal/apperrors"
	"github.com/beehold/beehold/internal/audit"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/authz"
	"github.com/beehold/beehold/internal/config"
	"github.com/beehold/beehold/internal/groups"
	"github.com/beehold/beehold/internal/invites"
	"github.com/beehold/beehold/internal/notify"
	"github.com/beehold/beehold/internal/resources"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	// Shared services
	auditor := audit.NewWriter(pool)
	auditReader := audit.NewReader(pool)
	groupSvc := groups.NewService(pool)
	inviteSvc := invites.NewService(pool, time.Duration(cfg.InviteTTLDays)*24*time.Hour)
	apiarySvc := apiaries.NewService(pool)
	notifier := notify.NewClient(cfg.NotifyURL, time.Duration(cfg.NotifyTimeoutMS)*time.Millisecond)
	engine := authz.NewEngine(resources.NewPGResolver(pool), groupSvc.Memberships())

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)

		r.Post("/signup", auth.HandleSignup(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(LoginRateLimitMiddleware(cfg.RateLimitRPM)).Post("/login", auth.HandleLogin(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout())
	})

	// API routes - Groups and invitations
	r.Route("/api/v1/groups", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)
		r.Use(auth.RequireAuth)

		r.Post("/", groups.HandleCreateGroup(groupSvc, auditor))
		r.Get("/", groups.HandleListGroups(groupSvc))
		r.Get("/{group_id}", groups.HandleGetGroup(groupSvc))
		r.Delete("/{group_id}", groups.HandleDeleteGroup(groupSvc, auditor))

		r.Get("/{group_id}/members", groups.HandleListMembers(groupSvc))
		r.Put("/{group_id}/members/{user_id}", groups.HandleChangeRole(groupSvc, auditor))
		r.Delete("/{group_id}/members/{user_id}", groups.HandleRemoveMember(groupSvc, auditor))

		r.Get("/{group_id}/audit", groups.HandleGroupAudit(groupSvc, auditReader))

		r.Post("/{group_id}/invites", invites.HandleCreateInvite(inviteSvc, groupSvc, auditor, notifier, cfg.BaseURL))
		r.Get("/{group_id}/invites", invites.HandleListInvites(inviteSvc))
		r.Delete("/{group_id}/invites/{invite_id}", invites.HandleCancelInvite(inviteSvc, auditor))
	})

	// API routes - Invitation redemption (token in URL, caller authenticated)
	r.Route("/api/v1/invites", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)
		r.Use(auth.RequireAuth)

		r.Post("/{token}/accept", invites.HandleAcceptInvite(inviteSvc, auditor))
		r.Post("/{token}/decline", invites.HandleDeclineInvite(inviteSvc, auditor))
	})

	// API routes - Authorization decisions
	r.Route("/api/v1/authz", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Post("/decide", authz.HandleDecide(engine))
	})

	// API routes - Apiaries and the records beneath them
	r.Route("/api/v1/apiaries", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)
		r.Use(auth.RequireAuth)

		r.Post("/", apiaries.HandleCreateApiary(apiarySvc, groupSvc.Memberships(), auditor))
		r.Get("/", apiaries.HandleListApiaries(apiarySvc))

		apiaryRef := authz.RefFromURLParam(resources.KindApiary, "apiary_id")
		r.With(authz.Require(engine, authz.ActionRead, apiaryRef)).
			Get("/{apiary_id}", apiaries.HandleGetApiary(apiarySvc))
		r.With(authz.Require(engine, authz.ActionWrite, apiaryRef)).
			Put("/{apiary_id}", apiaries.HandleUpdateApiary(apiarySvc))
		r.With(authz.Require(engine, authz.ActionAdminister, apiaryRef)).
			Put("/{apiary_id}/sharing", apiaries.HandleSetSharing(apiarySvc, groupSvc.Memberships(), auditor))
		r.With(authz.Require(engine, authz.ActionAdminister, apiaryRef)).
			Delete("/{apiary_id}", apiaries.HandleDeleteApiary(apiarySvc))

		r.With(authz.Require(engine, authz.ActionWrite, apiaryRef)).
			Post("/{apiary_id}/hives", apiaries.HandleCreateHive(apiarySvc))
		r.With(authz.Require(engine, authz.ActionRead, apiaryRef)).
			Get("/{apiary_id}/hives", apiaries.HandleListHives(apiarySvc))
	})

	// API routes - Hives (reached through their apiary's ownership)
	r.Route("/api/v1/hives", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware)
		r.Use(auth.RequireAuth)

		hiveRef := authz.RefFromURLParam(resources.KindHive, "hive_id")
		r.With(authz.Require(engine, authz.ActionWrite, hiveRef)).
			Post("/{hive_id}/inspections", apiaries.HandleCreateInspection(apiarySvc))
		r.With(authz.Require(engine, authz.ActionRead, hiveRef)).
			Get("/{hive_id}/inspections", apiaries.HandleListInspections(apiarySvc))
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
