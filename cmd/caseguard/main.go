package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/cache"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"github.com/raeburnlaw/caseguard/internal/redact"
	"github.com/raeburnlaw/caseguard/internal/server"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("caseguard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting caseguard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Create the redactor
	redactor, err := redact.New(cfg.Redaction, log.WithComponent("redact"))
	if err != nil {
		log.Fatal("Failed to create redactor", zap.Error(err))
	}

	// Redaction policy and rule toggles follow the config file without
	// a restart; invalid updates are rejected and the old policy stays.
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		if err := redactor.ApplyConfig(newCfg.Redaction); err != nil {
			log.Warn("Ignoring invalid redaction config update", zap.Error(err))
			return
		}
		log.Info("Redaction configuration reloaded")
	}); err != nil {
		log.Warn("Configuration watch unavailable", zap.Error(err))
	}

	// Create the audit trail writer
	writer, err := audit.NewWriter(cfg.Audit, redactor, log.WithComponent("audit"))
	if err != nil {
		log.Fatal("Failed to create audit writer", zap.Error(err))
	}

	// Optional recent-events cache
	var recent *cache.RecentEvents
	if cfg.Cache.Enabled {
		recent, err = cache.NewRecentEvents(cfg.Cache, log.WithComponent("cache"))
		if err != nil {
			log.Fatal("Failed to create recent-events cache", zap.Error(err))
		}
		writer.AddPublisher(recent)
	}

	// Create the admin server and wire the live feed
	srv := server.New(cfg, redactor, writer, recent, log)
	if cfg.WebSocket.Enabled {
		writer.AddPublisher(srv.WebSocketHub())
	}

	writer.Start()

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Stop accepting requests, then flush the audit buffer one last
	// time so no buffered event is lost.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
	}
	if err := writer.Close(ctx); err != nil {
		log.Error("Failed to close audit writer", zap.Error(err))
	}
	if recent != nil {
		if err := recent.Close(); err != nil {
			log.Error("Failed to close recent-events cache", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8085/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
