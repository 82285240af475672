package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/risk"
)

// Server runs the optional HTTP/WebSocket dashboard push described in
// SPEC_FULL.md's internal/telemetry row, adapted from the teacher's
// internal/api.Server almost unchanged — a read-only event fan-out doesn't
// change shape across domains.
type Server struct {
	cfg      config.DashboardConfig
	provider RoundSnapshotProvider
	fullCfg  config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates the dashboard server. riskMgr may be nil.
func NewServer(cfg config.DashboardConfig, provider RoundSnapshotProvider, riskMgr *risk.Manager, fullCfg config.Config, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, riskMgr, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		fullCfg:  fullCfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "telemetry-server"),
	}
}

// Start runs the WebSocket hub and the HTTP server. Blocks until Stop.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Push broadcasts a report to every connected dashboard client. The round
// runner calls this once per processed pair.
func (s *Server) Push(evt DashboardEvent) {
	s.hub.BroadcastEvent(evt)
}
