package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// MaxReportRangeDays caps the date range a report may cover.
const MaxReportRangeDays = 365

// entryQuerier is the read side of the database sink.
type entryQuerier interface {
	Query(ctx context.Context, start, end time.Time, filters ReportFilters) ([]Entry, error)
}

// GenerateReport retrieves persisted events within [start, end] and
// aggregates them. It requires the database sink.
func (w *Writer) GenerateReport(ctx context.Context, start, end time.Time, filters ReportFilters) (*Report, error) {
	if w.querier == nil {
		return nil, &ReportUnavailableError{}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("report end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if days := int(end.Sub(start).Hours() / 24); days > MaxReportRangeDays {
		return nil, &RangeTooLargeError{Days: days}
	}

	entries, err := w.querier.Query(ctx, start, end, filters)
	if err != nil {
		return nil, err
	}

	return &Report{
		Start:   start,
		End:     end,
		Entries: entries,
		Summary: summarize(entries),
	}, nil
}

func summarize(entries []Entry) ReportSummary {
	summary := ReportSummary{
		Total:       len(entries),
		ByEventType: make(map[EventType]int),
		BySeverity:  make(map[Severity]int),
		ByResult:    make(map[Result]int),
		ByUser:      make(map[string]int),
	}
	for _, entry := range entries {
		summary.ByEventType[EventType(entry.EventType)]++
		summary.BySeverity[Severity(entry.Severity)]++
		summary.ByResult[Result(entry.Result)]++
		user := "anonymous"
		if entry.UserID != nil && *entry.UserID != "" {
			user = *entry.UserID
		}
		summary.ByUser[user]++
	}
	return summary
}

// csvColumns is the fixed export column order.
var csvColumns = []string{
	"Timestamp", "User ID", "Action", "Resource", "Resource ID",
	"Result", "IP Address", "User Agent", "Details",
}

// WriteCSV renders entries in the fixed column order. Every field is
// double-quoted, which encoding/csv only does conditionally.
func WriteCSV(wr io.Writer, entries []Entry) error {
	if _, err := io.WriteString(wr, csvRow(csvColumns)); err != nil {
		return err
	}
	for _, entry := range entries {
		userID := ""
		if entry.UserID != nil {
			userID = *entry.UserID
		}
		details := ""
		if len(entry.Metadata) > 0 {
			details = compactJSON(entry.Metadata)
		}
		row := []string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			userID,
			entry.Action,
			entry.Resource,
			entry.ResourceID,
			entry.Result,
			entry.IPAddress,
			entry.UserAgent,
			details,
		}
		if _, err := io.WriteString(wr, csvRow(row)); err != nil {
			return err
		}
	}
	return nil
}

func csvRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, field := range fields {
		quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",") + "\n"
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
