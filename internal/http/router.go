package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/infolock/server/internal/auth"
	"github.com/infolock/server/internal/http/handlers"
	"github.com/infolock/server/internal/middleware"
	"github.com/infolock/server/internal/repo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps carries what the router needs to build its handlers
type RouterDeps struct {
	Service    *auth.Service
	Tokens     *auth.TokenIssuer
	Principals repo.PrincipalRepo
	ClientURL  string
	Log        *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.ClientURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authHandler := handlers.NewAuthHandler(d.Service, d.Log)
	adminHandler := handlers.NewAdminHandler(d.Service, d.Log)
	healthHandler := handlers.NewHealthHandler()

	r.Get("/api/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/verify-otp", authHandler.HandleVerifyOTP)
		r.Get("/verify-email/{token}", authHandler.HandleVerifyEmail)
		r.Post("/resend-verification", authHandler.HandleResendVerification)

		r.Post("/admin/login", adminHandler.HandleLogin)
		r.Post("/admin/verify-otp", adminHandler.HandleVerifyOTP)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.Tokens, d.Principals))
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/me", authHandler.HandleMe)
		})
	})

	return r
}
