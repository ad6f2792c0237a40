package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"go.uber.org/zap"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS audit_events (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	event_type     TEXT NOT NULL,
	severity       TEXT NOT NULL,
	result         TEXT NOT NULL,
	user_id        TEXT,
	session_id     TEXT NOT NULL DEFAULT '',
	ip_address     TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL DEFAULT '',
	resource       TEXT NOT NULL DEFAULT '',
	resource_id    TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL,
	metadata       JSONB,
	redacted_data  JSONB
)`

// DatabaseSink persists audit events one row per event in PostgreSQL.
type DatabaseSink struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewDatabaseSink connects to the database and ensures the audit table
// exists.
func NewDatabaseSink(cfg config.AuditDatabaseConfig, log *logger.Logger) (*DatabaseSink, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	sink := &DatabaseSink{db: db, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to ensure audit table: %w", err)
	}

	log.Info("Audit database sink initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return sink, nil
}

// Name identifies the sink in diagnostics.
func (s *DatabaseSink) Name() string { return "database" }

// Write inserts one event as one row.
func (s *DatabaseSink) Write(ctx context.Context, event *Event) error {
	metadata, err := json.Marshal(event.Details)
	if err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}
	redactedData, err := json.Marshal(map[string]interface{}{
		"beforeState":  event.BeforeState,
		"afterState":   event.AfterState,
		"errorMessage": event.ErrorMessage,
		"stackTrace":   event.StackTrace,
	})
	if err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}

	var userID *string
	if event.UserID != "" {
		userID = &event.UserID
	}

	query := `
		INSERT INTO audit_events (
			created_at, event_type, severity, result, user_id, session_id,
			ip_address, user_agent, action, resource, resource_id,
			correlation_id, metadata, redacted_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = s.db.ExecContext(ctx, query,
		event.Timestamp,
		string(event.EventType),
		string(event.Severity),
		string(event.Result),
		userID,
		event.SessionID,
		event.IPAddress,
		event.UserAgent,
		event.Action,
		event.Resource,
		event.ResourceID,
		event.CorrelationID,
		metadata,
		redactedData,
	)
	if err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}
	return nil
}

// Query returns persisted entries within [start, end] matching the
// filters, ordered oldest first.
func (s *DatabaseSink) Query(ctx context.Context, start, end time.Time, filters ReportFilters) ([]Entry, error) {
	query := `
		SELECT id, created_at, event_type, severity, result, user_id,
		       session_id, ip_address, user_agent, action, resource,
		       resource_id, correlation_id, metadata, redacted_data
		FROM audit_events
		WHERE created_at >= $1 AND created_at <= $2`
	args := []interface{}{start, end}

	if filters.UserID != "" {
		args = append(args, filters.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filters.Resource != "" {
		args = append(args, filters.Resource)
		query += fmt.Sprintf(" AND resource = $%d", len(args))
	}
	if filters.EventType != "" {
		args = append(args, string(filters.EventType))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	entries := []Entry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("audit report query failed: %w", err)
	}
	return entries, nil
}

// Close closes the database connection pool.
func (s *DatabaseSink) Close() error {
	return s.db.Close()
}
