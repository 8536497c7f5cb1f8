package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voyagen/playlistvault/internal/config"
	"github.com/voyagen/playlistvault/internal/service"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	lib        *service.Library
	importer   *service.Importer
	dispatcher service.Dispatcher
	board      *service.StatusBoard
	cfg        *config.Config
	logger     *slog.Logger
	mux        *http.ServeMux
}

// New creates a Server and registers routes. dispatcher runs imports for
// POST /api/playlists; importer is used directly when the client asks to wait.
func New(lib *service.Library, importer *service.Importer, dispatcher service.Dispatcher, board *service.StatusBoard, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		lib:        lib,
		importer:   importer,
		dispatcher: dispatcher,
		board:      board,
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Playlists
	s.mux.HandleFunc("GET /api/playlists", s.handleListPlaylists)
	s.mux.HandleFunc("POST /api/playlists", s.handleAddPlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}", s.handleGetPlaylist)
	s.mux.HandleFunc("DELETE /api/playlists/{id}", s.handleDeletePlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}/groups", s.handleListGroups)
	s.mux.HandleFunc("GET /api/playlists/{id}/channels", s.handleListChannels)

	// Channels
	s.mux.HandleFunc("GET /api/channels/favorites", s.handleListFavorites)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("POST /api/channels/{id}/favorite", s.handleToggleFavorite)

	// Imports
	s.mux.HandleFunc("GET /api/imports/status", s.handleImportStatus)

	// Metrics
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the API wrapped in CORS and request logging middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s.logger, s))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "err", err)
		}
	}()

	s.logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, _ *http.Request) {
	if s.board == nil {
		writeJSON(w, http.StatusOK, service.Snapshot{Imports: []service.ImportStatus{}})
		return
	}
	snap := s.board.Snapshot()
	if snap.Imports == nil {
		snap.Imports = []service.ImportStatus{}
	}
	writeJSON(w, http.StatusOK, snap)
}
