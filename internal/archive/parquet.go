package archive

import (
	"fmt"
	"os"
	"time"

	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Record is one archived audit entry. Columns mirror the CSV export.
type Record struct {
	Timestamp     string `parquet:"timestamp" json:"timestamp"`
	UserID        string `parquet:"user_id" json:"user_id"`
	EventType     string `parquet:"event_type" json:"event_type"`
	Severity      string `parquet:"severity" json:"severity"`
	Action        string `parquet:"action" json:"action"`
	Resource      string `parquet:"resource" json:"resource"`
	ResourceID    string `parquet:"resource_id" json:"resource_id"`
	Result        string `parquet:"result" json:"result"`
	IPAddress     string `parquet:"ip_address" json:"ip_address"`
	UserAgent     string `parquet:"user_agent" json:"user_agent"`
	CorrelationID string `parquet:"correlation_id" json:"correlation_id"`
	Details       string `parquet:"details" json:"details"`
}

// Exporter writes audit report entries to Parquet files for long-term
// retention.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a Parquet exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export writes entries to a Parquet file at path, returning the number
// of records written.
func (e *Exporter) Export(path string, entries []audit.Entry) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)

	written := 0
	for _, entry := range entries {
		record := fromEntry(entry)
		if err := writer.Write(&record); err != nil {
			e.logger.Warn("Failed to write archive record",
				zap.Int64("entry_id", entry.ID),
				zap.Error(err))
			continue
		}
		written++
	}

	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("failed to finalize archive: %w", err)
	}

	e.logger.Info("Audit archive written",
		zap.String("path", path),
		zap.Int("records", written))

	return written, nil
}

func fromEntry(entry audit.Entry) Record {
	userID := ""
	if entry.UserID != nil {
		userID = *entry.UserID
	}
	return Record{
		Timestamp:     entry.CreatedAt.UTC().Format(time.RFC3339),
		UserID:        userID,
		EventType:     entry.EventType,
		Severity:      entry.Severity,
		Action:        entry.Action,
		Resource:      entry.Resource,
		ResourceID:    entry.ResourceID,
		Result:        entry.Result,
		IPAddress:     entry.IPAddress,
		UserAgent:     entry.UserAgent,
		CorrelationID: entry.CorrelationID,
		Details:       string(entry.Metadata),
	}
}
