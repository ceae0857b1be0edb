package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/middleware"
	"github.com/atinyakov/teaadmin/internal/server/response"
)

// NewRouter constructs the HTTP handler of the mock admin backend.
//
// Routes:
//
//	GET  /health
//	GET  /api/v1/auth/captcha
//	POST /api/v1/auth/login, /api/v1/user/login
//	POST /api/v1/user/dev-login, /api/v1/auth/dev-login
//	GET  /api/v1/user/info, /api/v1/auth/me          (bearer)
//	POST /api/v1/user/refresh                        (bearer)
//	GET  /api/v1/admin/rbac/user-permissions         (bearer)
func NewRouter(
	authHandler *AuthHandler,
	rbacHandler *RBACHandler,
	auth middleware.Authenticator,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	// Only allow request bodies with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Get("/auth/captcha", authHandler.Captcha)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/user/login", authHandler.Login)
		r.Post("/user/dev-login", authHandler.DevLogin)
		r.Post("/auth/dev-login", authHandler.DevLogin)

		// Protected group: requires a valid bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(auth))
			r.Get("/user/info", authHandler.Me)
			r.Get("/auth/me", authHandler.Me)
			r.Post("/user/refresh", authHandler.Refresh)
			r.Get("/admin/rbac/user-permissions", rbacHandler.UserPermissions)
		})
	})

	return r
}
