// Package httpapi exposes the auth and module services over HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/modauth/internal/logging"
	"github.com/dmitrijs2005/modauth/internal/server/models"
	"github.com/dmitrijs2005/modauth/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Authenticator is the subset of services.AuthService used by handlers.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	AuthorizeAndIssue(ctx context.Context, email, password, moduleName string) (string, error)
	Check(ctx context.Context, token string) (*services.CheckResult, error)
	Refresh(ctx context.Context, token string) (string, error)
}

// ModuleAdmin is the subset of services.ModuleService used by handlers.
type ModuleAdmin interface {
	CreateModule(ctx context.Context, name, description string) (*models.Module, error)
	ListModules(ctx context.Context) ([]models.Module, error)
	AssignUserToModule(ctx context.Context, email, moduleName string) (*services.AssignResult, error)
	RevokeUserFromModule(ctx context.Context, email, moduleName string) error
	SetGrantActive(ctx context.Context, email, moduleName string, active bool) error
}

type HTTPServer struct {
	address        string
	logger         logging.Logger
	auth           Authenticator
	modules        ModuleAdmin
	adminToken     string
	allowedOrigins []string
}

type Option func(*HTTPServer)

// WithAdminToken protects module administration routes with the
// X-Admin-Token header. Empty means unprotected.
func WithAdminToken(token string) Option {
	return func(s *HTTPServer) { s.adminToken = token }
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *HTTPServer) { s.allowedOrigins = origins }
}

func NewHTTPServer(address string, l logging.Logger, a Authenticator, m ModuleAdmin, opts ...Option) *HTTPServer {
	s := &HTTPServer{
		address: address,
		logger:  l.With("module", "http_server"),
		auth:    a,
		modules: m,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the handler tree. Everything lives under /auth.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/ping", s.ping)
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/{module}/login", s.moduleLogin)
		r.Get("/check-token", s.checkToken)
		r.Post("/refresh-token", s.refreshToken)

		r.Group(func(r chi.Router) {
			r.Use(s.adminGuard)
			r.Post("/modules", s.createModule)
			r.Get("/modules", s.listModules)
			r.Post("/modules/assign", s.assignModule)
			r.Post("/modules/revoke", s.revokeModule)
			r.Post("/modules/status", s.setGrantStatus)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
