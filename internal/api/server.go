package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devicemonitor/internal/config"
	"devicemonitor/internal/metrics"
	"devicemonitor/internal/monitor"
	"devicemonitor/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SnapshotSource provides the current registry snapshot
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// Server provides the HTTP API of the device monitor
type Server struct {
	source   SnapshotSource
	monitors map[string]*monitor.Monitor
	order    []*monitor.Monitor
	recorder *metrics.Recorder
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewServer creates a new API server. recorder may be nil, in which case
// /metrics is not served.
func NewServer(source SnapshotSource, monitors []*monitor.Monitor, recorder *metrics.Recorder, logger *zap.Logger, port int) *Server {
	s := &Server{
		source:   source,
		monitors: make(map[string]*monitor.Monitor, len(monitors)),
		order:    monitors,
		recorder: recorder,
		logger:   logger.Named("api"),
	}
	for _, m := range monitors {
		s.monitors[m.Name()] = m
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if recorder != nil {
		r.Use(recorder.Middleware)
		r.Method(http.MethodGet, "/metrics", recorder.Handler())
	}

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Route("/api/monitors", func(r chi.Router) {
		r.Get("/", s.handleListMonitors)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/card", s.handleCard)
			r.Get("/badge", s.handleBadge)
			r.Get("/devices", s.handleDevices)
		})
	})
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// lookup resolves the {name} URL parameter, replying 404 when unknown
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*monitor.Monitor, bool) {
	name := chi.URLParam(r, "name")
	m, ok := s.monitors[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown monitor %q", name))
	}
	return m, ok
}

// boolParam parses an optional boolean query parameter
func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status   string `json:"status"`
	Entities int    `json:"entities"`
	Monitors int    `json:"monitors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Entities: s.source.Snapshot().Len(),
		Monitors: len(s.order),
	})
}

// MonitorSummary describes one monitor in /api/monitors
type MonitorSummary struct {
	Name   string             `json:"name"`
	Title  string             `json:"title"`
	Config *config.Monitor    `json:"config"`
	Badge  *monitor.BadgeView `json:"badge"`
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()

	summaries := make([]MonitorSummary, 0, len(s.order))
	for _, m := range s.order {
		summaries = append(summaries, MonitorSummary{
			Name:   m.Name(),
			Title:  m.Title(),
			Config: m.Config(),
			Badge:  m.RenderBadge(snap, true),
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var view monitor.ViewState
	var editMode bool
	var err error
	if view.ShowAll, err = boolParam(r, "show_all"); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if view.Expanded, err = boolParam(r, "expanded"); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if editMode, err = boolParam(r, "edit_mode"); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, m.RenderCard(s.source.Snapshot(), view, editMode))
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}

	editMode, err := boolParam(r, "edit_mode")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, m.RenderBadge(s.source.Snapshot(), editMode))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, m.Collect(s.source.Snapshot()))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	// Unknown pages get the sitemap, with a 404 status
	s.writeSitemap(w, r, http.StatusNotFound)
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

func (s *Server) endpoints() []Endpoint {
	endpoints := []Endpoint{
		{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
		{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	}
	if s.recorder != nil {
		endpoints = append(endpoints, Endpoint{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"})
	}
	return append(endpoints,
		Endpoint{Path: "/api/monitors", Method: "GET", Description: "List monitors with their configuration and badge"},
		Endpoint{Path: "/api/monitors/{name}/card", Method: "GET", Description: "Render a card (?show_all=&expanded=&edit_mode=)"},
		Endpoint{Path: "/api/monitors/{name}/badge", Method: "GET", Description: "Render a badge (?edit_mode=)"},
		Endpoint{Path: "/api/monitors/{name}/devices", Method: "GET", Description: "Raw alert/normal/unavailable device lists"},
	)
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	s.writeSitemap(w, r, http.StatusOK)
}

func (s *Server) writeSitemap(w http.ResponseWriter, r *http.Request, status int) {
	endpoints := s.endpoints()
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Device Monitor API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Device Monitor API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "    <h2>Monitors</h2>\n")
		for _, m := range s.order {
			fmt.Fprintf(w, "    <div class=\"endpoint\"><a href=\"/api/monitors/%s/card\">%s</a></div>\n", m.Name(), m.Title())
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, "Device Monitor API\n")
		fmt.Fprintf(w, "==================\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-32s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nMonitors:\n\n")
		for _, m := range s.order {
			fmt.Fprintf(w, "  %-20s %s\n", m.Name(), m.Title())
		}
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
