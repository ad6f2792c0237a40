package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeQuerier serves canned entries and records the filters it was
// asked for.
type fakeQuerier struct {
	entries []Entry
	err     error
	filters ReportFilters
}

func (f *fakeQuerier) Query(_ context.Context, _, _ time.Time, filters ReportFilters) ([]Entry, error) {
	f.filters = filters
	return f.entries, f.err
}

func strPtr(s string) *string { return &s }

func sampleEntries() []Entry {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return []Entry{
		{
			ID: 1, CreatedAt: base,
			EventType: "DATA_READ", Severity: "INFO", Result: "SUCCESS",
			UserID: strPtr("alice"), Action: "view", Resource: "cases", ResourceID: "c-1",
			IPAddress: "10.0.0.1", UserAgent: "curl/8.0",
			Metadata: []byte(`{  "fields" : ["summary"] }`),
		},
		{
			ID: 2, CreatedAt: base.Add(time.Hour),
			EventType: "DATA_UPDATE", Severity: "INFO", Result: "SUCCESS",
			UserID: strPtr("alice"), Action: "update", Resource: "cases", ResourceID: "c-1",
		},
		{
			ID: 3, CreatedAt: base.Add(2 * time.Hour),
			EventType: "LOGIN_FAILURE", Severity: "WARNING", Result: "FAILURE",
			Action: "login", Resource: "sessions",
		},
	}
}

func TestGenerateReportRequiresDatabase(t *testing.T) {
	w := newTestWriter(t, nil, nil)

	_, err := w.GenerateReport(context.Background(), time.Now().Add(-time.Hour), time.Now(), ReportFilters{})
	var unavailable *ReportUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected ReportUnavailableError, got %v", err)
	}
}

func TestGenerateReportValidatesRange(t *testing.T) {
	w := newTestWriter(t, nil, nil)
	w.querier = &fakeQuerier{}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("end before start", func(t *testing.T) {
		_, err := w.GenerateReport(context.Background(), start, start.Add(-time.Hour), ReportFilters{})
		if err == nil {
			t.Fatal("Expected an error for an inverted range")
		}
	})

	t.Run("range over the cap", func(t *testing.T) {
		_, err := w.GenerateReport(context.Background(), start, start.AddDate(0, 0, 400), ReportFilters{})
		var tooLarge *RangeTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("Expected RangeTooLargeError, got %v", err)
		}
		if tooLarge.Days != 400 {
			t.Errorf("Expected 400 days reported, got %d", tooLarge.Days)
		}
	})

	t.Run("range at the cap", func(t *testing.T) {
		_, err := w.GenerateReport(context.Background(), start, start.AddDate(0, 0, MaxReportRangeDays), ReportFilters{})
		if err != nil {
			t.Fatalf("Range at the cap must be accepted, got %v", err)
		}
	})
}

func TestGenerateReportSummarizes(t *testing.T) {
	w := newTestWriter(t, nil, nil)
	querier := &fakeQuerier{entries: sampleEntries()}
	w.querier = querier

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	filters := ReportFilters{UserID: "alice"}

	report, err := w.GenerateReport(context.Background(), start, end, filters)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	if querier.filters != filters {
		t.Errorf("Filters not passed through: %+v", querier.filters)
	}
	if report.Summary.Total != 3 {
		t.Errorf("Expected total 3, got %d", report.Summary.Total)
	}
	if report.Summary.ByEventType[EventDataRead] != 1 {
		t.Errorf("Expected 1 DATA_READ, got %d", report.Summary.ByEventType[EventDataRead])
	}
	if report.Summary.BySeverity[SeverityWarning] != 1 {
		t.Errorf("Expected 1 WARNING, got %d", report.Summary.BySeverity[SeverityWarning])
	}
	if report.Summary.ByResult[ResultFailure] != 1 {
		t.Errorf("Expected 1 FAILURE, got %d", report.Summary.ByResult[ResultFailure])
	}
	if report.Summary.ByUser["alice"] != 2 {
		t.Errorf("Expected 2 events for alice, got %d", report.Summary.ByUser["alice"])
	}
	if report.Summary.ByUser["anonymous"] != 1 {
		t.Errorf("Expected 1 anonymous event, got %d", report.Summary.ByUser["anonymous"])
	}
}

func TestGenerateReportPropagatesQueryError(t *testing.T) {
	w := newTestWriter(t, nil, nil)
	w.querier = &fakeQuerier{err: errors.New("connection reset")}

	_, err := w.GenerateReport(context.Background(), time.Now().Add(-time.Hour), time.Now(), ReportFilters{})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Expected the query error, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	entries := sampleEntries()
	entries[0].UserAgent = `Mozilla "test" agent`

	var buf strings.Builder
	if err := WriteCSV(&buf, entries); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d lines", len(lines))
	}

	wantHeader := `"Timestamp","User ID","Action","Resource","Resource ID","Result","IP Address","User Agent","Details"`
	if lines[0] != wantHeader {
		t.Errorf("Unexpected header: %s", lines[0])
	}

	if !strings.Contains(lines[1], `"Mozilla ""test"" agent"`) {
		t.Errorf("Embedded quotes not doubled: %s", lines[1])
	}
	if !strings.Contains(lines[1], `"{""fields"":[""summary""]}"`) {
		t.Errorf("Metadata not compacted into the Details column: %s", lines[1])
	}
	if !strings.Contains(lines[1], `"2026-02-01T09:00:00Z"`) {
		t.Errorf("Timestamp not RFC3339: %s", lines[1])
	}

	// Anonymous row keeps its empty, still-quoted user column.
	if !strings.HasPrefix(lines[3], `"2026-02-01T11:00:00Z","","login"`) {
		t.Errorf("Unexpected anonymous row: %s", lines[3])
	}

	for i, line := range lines {
		if !strings.HasPrefix(line, `"`) || !strings.HasSuffix(line, `"`) {
			t.Errorf("Line %d is not fully quoted: %s", i, line)
		}
	}
}
