package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/tkilaker/inkdesk/internal/config"
	"github.com/tkilaker/inkdesk/internal/database"
	"github.com/tkilaker/inkdesk/internal/logging"
	"github.com/tkilaker/inkdesk/internal/postcheck"
)

const (
	sessionName       = "inkdesk"
	sessionKey        = "workspace"
	sweepInterval     = time.Minute
	requestTimeout    = 60 * time.Second
	maxPhotoBytes     = 5 << 20
	recentPublishes   = 50
	searchResultLimit = 20
)

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	config    *config.Config
	store     database.Store
	sessions  *sessions.CookieStore
	registry  *Registry
	postcheck *postcheck.Checker
	logs      *logging.Provider
	logger    logging.Logger
}

// Option configures a Server
type Option func(*Server)

// WithPostChecker replaces the live post checker
func WithPostChecker(c *postcheck.Checker) Option {
	return func(s *Server) {
		s.postcheck = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, store database.Store, logs *logging.Provider, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		store:  store,
		logs:   logs,
		logger: logs.Get("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.postcheck == nil {
		s.postcheck = postcheck.New(postcheck.WithLogger(logs.Get("postcheck")))
	}

	s.sessions = sessions.NewCookieStore([]byte(cfg.SessionSecret))
	s.sessions.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.WorkspaceIdleTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	s.registry = NewRegistry(cfg.WorkspaceIdleTTL, s.newWorkspace, logs.Get("workspace"))

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s.router.Get("/rss.xml", s.handleRSS)

	s.router.Group(func(r chi.Router) {
		r.Use(s.withWorkspace)

		// Long-lived stream, kept out of the request timeout
		r.With(s.requireAuth).Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/", s.handleIndex)

			// Guest pages
			r.Group(func(r chi.Router) {
				r.Use(s.redirectIfAuthenticated)
				r.Get("/login", s.handleLoginPage)
				r.Post("/login", s.handleLogin)
				r.Get("/register", s.handleRegisterPage)
				r.Post("/register", s.handleRegister)
				r.Get("/forgot-password", s.handleForgotPasswordPage)
				r.Post("/forgot-password", s.handleForgotPassword)
				r.Get("/reset-password", s.handleResetPasswordPage)
				r.Post("/reset-password", s.handleResetPassword)
			})
			r.Get("/verify-email/{token}", s.handleVerifyEmail)
			r.Post("/resend-verification", s.handleResendVerification)

			// Signed-in pages
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/logout", s.handleLogout)
				r.Post("/ui/sidebar", s.handleToggleSidebar)

				r.Get("/dashboard", s.handleDashboard)
				r.Get("/profile", s.handleProfilePage)
				r.Post("/profile", s.handleUpdateProfile)
				r.Post("/profile/photo", s.handleUpdatePhoto)

				r.Route("/settings", func(r chi.Router) {
					r.Get("/", s.handleSettingsPage)
					r.Post("/username", s.handleUpdateUsername)
					r.Post("/email", s.handleUpdateEmail)
					r.Post("/password", s.handleUpdatePassword)
					r.Post("/{field}/check", s.handleAvailabilityInput)
					r.Get("/{field}/status", s.handleAvailabilityStatus)
				})

				r.Route("/articles", func(r chi.Router) {
					r.Get("/", s.handleArticleList)
					r.Get("/search", s.handleArticleSearch)

					r.Get("/new", s.handleGeneratePage)
					r.Post("/new", s.handleGenerate)
					r.Post("/new/sites/verify", s.handleGenerateVerifySite)
					r.Post("/new/sites/{siteID}/remove", s.handleGenerateRemoveSite)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleArticleView)
						r.Get("/details", s.handleArticleDetails)
						r.Get("/check", s.handleArticleCheck)

						r.Get("/edit", s.handleEditPage)
						r.Post("/edit/commands", s.handleEditCommand)
						r.Post("/edit/link", s.handleEditLink)
						r.Post("/edit/save", s.handleEditSave)

						r.Post("/delete", s.handleDeleteRequest)
						r.Post("/delete/confirm", s.handleDeleteConfirm)
						r.Post("/delete/cancel", s.handleDeleteCancel)

						r.Get("/wordpress", s.handlePublishPage)
						r.Post("/wordpress/verify", s.handlePublishVerifySite)
						r.Post("/wordpress/sites/{siteID}/remove", s.handlePublishRemoveSite)
						r.Post("/wordpress/publish", s.handlePublish)
					})
				})
			})
		})
	})
}

// Router returns the Chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Registry returns the workspace registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.registry.Run(sweepCtx, sweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.registry.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.registry.Close()
	if err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// handleIndex redirects to the dashboard
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
