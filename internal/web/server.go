// Package web is the HTTP adapter of the appliance: the JSON API, the
// landing page, live updates over WebSocket and the metrics endpoint.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"upsbox/internal/appliance"
	"upsbox/internal/metrics"
	"upsbox/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAllowedOrigins sets allowed origins for mutating requests and WebSocket upgrades.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithVersion sets the application version string shown in the UI.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// WithMetrics records request counters and serves GET /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithStore serves the persisted change log on GET /api/changes.
func WithStore(st store.Store) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// Server is the HTTP server for the web interface.
type Server struct {
	app            *appliance.Appliance
	index          *template.Template
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	handler        http.Handler
	allowedOrigins []string
	version        string
	metrics        *metrics.Metrics
	store          store.Store
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates a new web server.
func NewServer(app *appliance.Appliance, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	index, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	s := &Server{
		app:    app,
		index:  index,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	// Broadcast every applied state change to WebSocket clients.
	s.unsubEvents = app.Events().Subscribe(func(event appliance.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	s.handler = s.withRequestID(s.withAccessLog(s.withRecovery(http.HandlerFunc(s.serveCORS))))
	return s, nil
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	s.mux.HandleFunc("POST /api/setNet", s.handleAPISetNet)
	s.mux.HandleFunc("POST /api/setMqttServer", s.handleAPISetMqttServer)
	s.mux.HandleFunc("POST /api/setName", s.handleAPISetName)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)
	if s.store != nil {
		s.mux.HandleFunc("GET /api/changes", s.handleAPIChanges)
	}

	s.mux.HandleFunc("GET /ws", s.handleWS)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// serveCORS checks Origin on mutating requests to prevent CSRF, then dispatches.
func (s *Server) serveCORS(w http.ResponseWriter, r *http.Request) {
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// handleIndex renders to a buffer first, so partial write failures don't corrupt the response.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"DeviceName": s.app.State().DeviceName(),
		"Version":    s.version,
	}
	var buf bytes.Buffer
	if err := s.index.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.logger.Error("render index", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write index response", "err", err)
	}
}
