package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/cache"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"github.com/raeburnlaw/caseguard/internal/redact"
	"github.com/raeburnlaw/caseguard/internal/web"
	"github.com/raeburnlaw/caseguard/internal/websocket"
	"go.uber.org/zap"
)

// Server exposes the compliance admin API: rule management, redaction
// preview, report retrieval, and the live dashboard feed.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	redactor *redact.Redactor
	writer   *audit.Writer
	recent   *cache.RecentEvents // nil when cache disabled
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiter  *clientLimiter

	started  time.Time
	stopFeed chan struct{}
	stopOnce sync.Once
}

// New creates the admin server. recent may be nil.
func New(cfg *config.Config, redactor *redact.Redactor, writer *audit.Writer, recent *cache.RecentEvents, log *logger.Logger) *Server {
	wsHub := websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger)

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		redactor: redactor,
		writer:   writer,
		recent:   recent,
		router:   mux.NewRouter(),
		wsHub:    wsHub,
		limiter:  newClientLimiter(cfg.RateLimit),
		started:  time.Now(),
		stopFeed: make(chan struct{}),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/rules", s.handleListRules).Methods("GET")
	api.HandleFunc("/rules", s.handleAddRule).Methods("POST")
	api.HandleFunc("/rules/stats", s.handleRuleStats).Methods("GET")
	api.HandleFunc("/rules/{id}", s.handleGetRule).Methods("GET")
	api.HandleFunc("/rules/{id}/status", s.handleSetRuleStatus).Methods("PATCH")

	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
	api.HandleFunc("/check", s.handleCheck).Methods("POST")

	api.HandleFunc("/reports", s.handleReport).Methods("GET")
	api.HandleFunc("/events/recent", s.handleRecentEvents).Methods("GET")
}

// WebSocketHub returns the hub so it can be wired as an audit publisher.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// Start starts the HTTP server and the websocket hub.
func (s *Server) Start() error {
	s.logger.Info("Starting caseguard admin server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
	)

	if s.config.WebSocket.Enabled {
		go s.wsHub.Run()
		go s.statusLoop()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping caseguard admin server")
	s.stopOnce.Do(func() { close(s.stopFeed) })
	return s.server.Shutdown(ctx)
}

// statusLoop broadcasts a system status snapshot to dashboard clients.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.redactor.Stats()
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: websocket.SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(s.started).Round(time.Second).String(),
					BufferedEvents:   s.writer.BufferLen(),
					ActiveRules:      stats.Enabled,
					ConnectedClients: int(s.wsHub.Stats().ActiveConnections),
				},
			})
		case <-s.stopFeed:
			return
		}
	}
}

// broadcastRedaction offers a summary of fired rules to the dashboard
// feed. Original text never crosses this boundary.
func (s *Server) broadcastRedaction(results ...redact.Result) {
	if !s.config.WebSocket.Enabled {
		return
	}

	ruleIDs := []string{}
	categories := []string{}
	seenRule := map[string]bool{}
	seenCategory := map[string]bool{}
	matches := 0
	level := ""
	for _, result := range results {
		level = string(result.Level)
		for _, applied := range result.Applied {
			matches += applied.MatchCount
			if !seenRule[applied.RuleID] {
				seenRule[applied.RuleID] = true
				ruleIDs = append(ruleIDs, applied.RuleID)
			}
			if !seenCategory[string(applied.Category)] {
				seenCategory[string(applied.Category)] = true
				categories = append(categories, string(applied.Category))
			}
		}
	}
	if matches == 0 {
		return
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		Timestamp: time.Now(),
		Data: websocket.RedactionFeedEvent{
			RuleIDs:    ruleIDs,
			Categories: categories,
			Matches:    matches,
			Level:      level,
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.redactor.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"caseguard",
		"environment":%q,
		"rules_total":%d,
		"rules_enabled":%d,
		"database_sink":%t,
		"file_sink":%t
	}`, s.config.Redaction.Environment, stats.Total, stats.Enabled,
		s.config.Audit.Database.Enabled, s.config.Audit.File.Enabled)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
