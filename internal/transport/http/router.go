package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wiki-mailauth/internal/config"
	"github.com/wiki-mailauth/internal/transport/http/handler"
	appmiddleware "github.com/wiki-mailauth/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// rate limiter's background cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustedProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.NotFound(handler.NotFound)

	// Applied to endpoints that send mail or consume verification attempts.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)

	healthH := handler.NewHealthHandler(deps.AuthService)
	authH := handler.NewAuthHandler(deps.AuthService)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.Health)
		r.With(sensitiveRL.Limit).Get("/test-email", healthH.TestEmail)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/validate-email", authH.ValidateEmail)

			r.Group(func(r chi.Router) {
				r.Use(sensitiveRL.Limit)

				r.Post("/send-code", authH.SendCode)
				r.Post("/verify-code", authH.VerifyCode)
				r.Post("/register", authH.Register)
				r.Post("/send-reset-code", authH.SendResetCode)
				r.Post("/reset-password", authH.ResetPassword)
				r.Post("/delete-account", authH.DeleteAccount)
			})
		})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	return r
}
