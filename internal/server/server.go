// Package server exposes the profile pages and API over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/systmms/userprofile/internal/app"
	"github.com/systmms/userprofile/internal/logging"
	"github.com/systmms/userprofile/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 15 * time.Second

// Server routes requests to the profile handlers.
type Server struct {
	services  *app.Services
	logger    *logging.Logger
	templates *template.Template
	validate  *validator.Validate
	handler   http.Handler
}

// New builds the router. Templates are parsed once here.
func New(services *app.Services) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		services:  services,
		logger:    services.Logger(),
		templates: tmpl,
		validate:  validator.New(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler, including CORS when configured.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	metrics.InitMetrics()

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, metricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/users/new", s.handleNewUserForm).Methods(http.MethodGet)
	r.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{user_id}", s.handleUserPage).Methods(http.MethodGet)
	r.HandleFunc("/users/{user_id}/photo", s.handleUserPhoto).Methods(http.MethodGet)
	r.HandleFunc("/users/{user_id}/photo-url", s.handleUserPhotoURL).Methods(http.MethodGet)
	r.HandleFunc("/users/{user_id}/photos", s.handleUserPhotos).Methods(http.MethodGet)

	origins := s.services.Settings().HTTP.CORSAllowedOrigins
	if len(origins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.services.Settings().HTTP.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Slog().Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
