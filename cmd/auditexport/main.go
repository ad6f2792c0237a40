package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raeburnlaw/caseguard/internal/archive"
	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		from       = flag.String("from", "", "Range start (RFC3339 or YYYY-MM-DD)")
		to         = flag.String("to", "", "Range end (RFC3339 or YYYY-MM-DD)")
		format     = flag.String("format", "csv", "Output format: csv or parquet")
		output     = flag.String("output", "", "Output file path")
		userID     = flag.String("user", "", "Filter by user id")
		resource   = flag.String("resource", "", "Filter by resource")
		eventType  = flag.String("event-type", "", "Filter by event type")
	)
	flag.Parse()

	if *from == "" || *to == "" || *output == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --from 2026-01-01 --to 2026-01-31 --output january.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --from 2026-01-01 --to 2026-12-31 --format parquet --output 2026.parquet\n", os.Args[0])
		os.Exit(1)
	}

	start, err := parseDate(*from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		os.Exit(1)
	}
	end, err := parseDate(*to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
		os.Exit(1)
	}
	if end.Before(start) {
		fmt.Fprintf(os.Stderr, "--to is before --from\n")
		os.Exit(1)
	}
	if days := int(end.Sub(start).Hours() / 24); days > audit.MaxReportRangeDays {
		fmt.Fprintf(os.Stderr, "Range of %d days exceeds the %d day limit\n", days, audit.MaxReportRangeDays)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling export...")
		cancel()
	}()

	sink, err := audit.NewDatabaseSink(cfg.Audit.Database, log.WithComponent("audit.database"))
	if err != nil {
		log.Fatal("Failed to connect to audit database", zap.Error(err))
	}
	defer sink.Close()

	filters := audit.ReportFilters{
		UserID:    *userID,
		Resource:  *resource,
		EventType: audit.EventType(*eventType),
	}

	queryStart := time.Now()
	entries, err := sink.Query(ctx, start, end, filters)
	if err != nil {
		log.Fatal("Audit query failed", zap.Error(err))
	}
	log.Info("Audit entries retrieved",
		zap.Int("entries", len(entries)),
		zap.Duration("duration", time.Since(queryStart)))

	switch *format {
	case "csv":
		file, err := os.Create(*output)
		if err != nil {
			log.Fatal("Failed to create output file", zap.Error(err))
		}
		defer file.Close()
		if err := audit.WriteCSV(file, entries); err != nil {
			log.Fatal("CSV export failed", zap.Error(err))
		}
	case "parquet":
		exporter := archive.NewExporter(log.WithComponent("archive").Logger)
		if _, err := exporter.Export(*output, entries); err != nil {
			log.Fatal("Parquet export failed", zap.Error(err))
		}
	default:
		log.Fatal("Unknown format", zap.String("format", *format))
	}

	log.Info("Export complete",
		zap.String("output", *output),
		zap.String("format", *format),
		zap.Int("entries", len(entries)))
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
