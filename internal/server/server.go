package server

import (
	"context"
	"io/fs"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"testforge/internal/db"
	"testforge/web"
)

// JobDispatcher starts background ingestion and generation jobs and tracks
// running ones.
type JobDispatcher interface {
	DispatchIngest(ctx context.Context, repo db.Repo) error
	DispatchGenerate(ctx context.Context, suite db.Suite) error
	IsRunning(id string) bool
	Cancel(id string) bool
}

// Config holds server configuration.
type Config struct {
	// DevMode enables reverse-proxying non-API requests to the Vite dev server.
	DevMode bool
	// ViteURL is the Vite dev server URL (default "http://localhost:5173").
	ViteURL string
	// Hub is the WebSocket hub for real-time updates. When non-nil, the
	// /api/ws endpoint is registered to serve WebSocket connections.
	Hub *Hub
	// DB is the database connection for API endpoints. When non-nil, REST
	// API endpoints are registered.
	DB *db.DB
	// Jobs dispatches background work. Optional; when nil, ingestion and
	// generation endpoints return 503.
	Jobs JobDispatcher
	// ModelName is the configured Gemini model, included in suite responses.
	ModelName string
	// OnEvent is invoked for activity produced by synchronous suite runs,
	// mirroring the worker's activity callback.
	OnEvent func(repoID, eventType, detail string)
}

// Server wraps the testforge HTTP server.
type Server struct {
	mux      *http.ServeMux
	listener net.Listener
}

// New creates a Server bound to the given address (e.g. "127.0.0.1:8750").
// It does not start serving; call Serve() for that.
func New(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &Server{mux: mux, listener: ln}
	s.registerRoutes(cfg)
	return s, nil
}

// Addr returns the listener's address (useful when binding to :0 in tests).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve starts accepting connections. It blocks until the listener is closed.
func (s *Server) Serve() error {
	return http.Serve(s.listener, s.mux)
}

// Close shuts down the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) registerRoutes(cfg Config) {
	if cfg.DB != nil {
		api := &apiHandler{
			db:        cfg.DB,
			startAt:   time.Now(),
			jobs:      cfg.Jobs,
			modelName: cfg.ModelName,
			onEvent:   cfg.OnEvent,
		}
		s.mux.HandleFunc("GET /api/status", api.handleStatus)
		s.mux.HandleFunc("POST /api/repos", api.handleCreateRepo)
		s.mux.HandleFunc("GET /api/repos", api.handleListRepos)
		s.mux.HandleFunc("GET /api/repos/{id}", api.handleGetRepo)
		s.mux.HandleFunc("DELETE /api/repos/{id}", api.handleDeleteRepo)
		s.mux.HandleFunc("GET /api/repos/{id}/context", api.handleGetContext)
		s.mux.HandleFunc("GET /api/repos/{id}/activity", api.handleListActivity)
		s.mux.HandleFunc("POST /api/repos/{id}/suites", api.handleCreateSuite)
		s.mux.HandleFunc("GET /api/repos/{id}/suites", api.handleListSuites)
		s.mux.HandleFunc("GET /api/suites/{id}", api.handleGetSuite)
		s.mux.HandleFunc("POST /api/suites/{id}/runs", api.handleCreateRun)
		s.mux.HandleFunc("GET /api/suites/{id}/runs", api.handleListRuns)
		s.mux.HandleFunc("GET /api/runs/{id}", api.handleGetRun)
	} else {
		s.mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	if cfg.Hub != nil {
		s.mux.HandleFunc("GET /api/ws", cfg.Hub.ServeWS)
	}

	// Catch-all for unregistered /api/ routes — return 404.
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if cfg.DevMode {
		viteURL := cfg.ViteURL
		if viteURL == "" {
			viteURL = "http://localhost:5173"
		}
		target, _ := url.Parse(viteURL)
		proxy := httputil.NewSingleHostReverseProxy(target)
		s.mux.Handle("/", proxy)
	} else {
		s.mux.Handle("/", spaHandler())
	}
}

// spaHandler returns an http.Handler that serves the embedded SPA.
// For any path that doesn't match a real file, it serves index.html
// to support client-side routing.
func spaHandler() http.Handler {
	staticFS, err := web.StaticFS()
	if err != nil {
		panic("failed to load embedded web assets: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(staticFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		// Try to open the file. If it exists, serve it directly.
		if f, err := staticFS.Open(path); err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}

		// File not found — serve index.html for client-side routing.
		indexFile, err := fs.ReadFile(staticFS, "index.html")
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexFile)
	})
}
