package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/pricewatch/internal/config"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/routes"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultFetchTimeout   = 90 * time.Second
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http    *http.Server
	logger  logger.Logger
	started time.Time
}

func withDefaults(d deps.Deps) deps.Deps {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}
	if d.FetchTimeout <= 0 {
		d.FetchTimeout = defaultFetchTimeout
	}
	if d.ProviderTimeout <= 0 {
		d.ProviderTimeout = d.RequestTimeout
	}
	if d.FetchBurst < 1 {
		d.FetchBurst = 5
	}
	if d.FetchRefillPerM < 1 {
		d.FetchRefillPerM = 10
	}
	return d
}

// newRouter builds the router: global middlewares then every registered route.
// Timeouts are applied per route group since fetch runs a browser and an
// inference call.
func newRouter(loggerClient logger.Logger, d deps.Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(loggerClient))

	routes.RegisterAll(r, d)
	return r
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	d = withDefaults(d)

	s := &http.Server{
		Addr:              cfg.ListenPort,
		Handler:           newRouter(loggerClient, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      d.FetchTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:    s,
		logger:  loggerClient,
		started: d.StartTime,
	}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down",
		logger.Duration("uptime", time.Since(s.started)))
	return s.http.Shutdown(ctx)
}
