package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"absence-api/internal/config"
	"absence-api/internal/handler"
	"absence-api/internal/middleware"
	"absence-api/internal/model"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	absenceHandler *handler.AbsenceHandler,
	documentHandler *handler.DocumentHandler,
	userHandler *handler.UserHandler,
	wsHandler *handler.WSHandler,
	health http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The websocket route sits outside the timeout wrapper; long-lived
	// connections must not be cut after REQUEST_TIMEOUT.
	r.With(authMiddleware.RequireAuth).Get("/api/v1/ws", wsHandler.Connect)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.With(authMiddleware.RequireAuth).Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		api.Route("/absences", func(ab chi.Router) {
			ab.Use(authMiddleware.RequireAuth)

			ab.Get("/", absenceHandler.List)
			ab.Post("/", absenceHandler.Create)
			ab.With(authMiddleware.RequireRoles(model.RoleTeacher, model.RoleDeanOffice, model.RoleAdmin)).
				Get("/export", absenceHandler.Export)
			ab.Get("/{id}", absenceHandler.Get)
			ab.Put("/{id}", absenceHandler.Update)
			ab.Post("/{id}/extend", absenceHandler.Extend)
			ab.With(authMiddleware.RequireRoles(model.RoleDeanOffice)).
				Post("/{id}/approve", absenceHandler.Approve)
			ab.With(authMiddleware.RequireRoles(model.RoleDeanOffice)).
				Post("/{id}/reject", absenceHandler.Reject)
		})

		api.Route("/documents", func(docs chi.Router) {
			docs.Use(authMiddleware.RequireAuth)

			docs.Get("/{id}", documentHandler.Download)
			docs.Delete("/{id}", documentHandler.Delete)
			docs.Get("/{id}/thumbnail", documentHandler.Thumbnail)
		})

		api.Route("/users", func(users chi.Router) {
			users.Use(authMiddleware.RequireAuth)

			users.With(authMiddleware.RequireRoles(model.RoleTeacher, model.RoleDeanOffice, model.RoleAdmin)).
				Get("/", userHandler.List)
			users.Get("/{id}", userHandler.Get)
			users.With(authMiddleware.RequireRoles(model.RoleDeanOffice, model.RoleAdmin)).
				Put("/{id}/roles", userHandler.SetRoles)
		})
	})

	return r
}
