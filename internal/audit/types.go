package audit

import (
	"fmt"
	"time"
)

// EventType identifies the kind of operation an audit event records.
type EventType string

const (
	EventLoginSuccess      EventType = "LOGIN_SUCCESS"
	EventLoginFailure      EventType = "LOGIN_FAILURE"
	EventDataCreate        EventType = "DATA_CREATE"
	EventDataRead          EventType = "DATA_READ"
	EventDataUpdate        EventType = "DATA_UPDATE"
	EventDataDelete        EventType = "DATA_DELETE"
	EventDataExport        EventType = "DATA_EXPORT"
	EventSecurityAlert     EventType = "SECURITY_ALERT"
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventConsentGiven      EventType = "CONSENT_GIVEN"
	EventConsentWithdrawn  EventType = "CONSENT_WITHDRAWN"
	EventGDPRDataRequest   EventType = "GDPR_DATA_REQUEST"
	EventGDPRDataDeletion  EventType = "GDPR_DATA_DELETION"
	EventError             EventType = "ERROR"
)

// Severity ranks an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Result records whether the audited operation succeeded.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// Event is one audit record. Free-text and record-valued fields are
// sanitized through the redactor before any sink sees them.
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	EventType     EventType              `json:"eventType"`
	Severity      Severity               `json:"severity"`
	Result        Result                 `json:"result"`
	UserID        string                 `json:"userId,omitempty"`
	SessionID     string                 `json:"sessionId,omitempty"`
	IPAddress     string                 `json:"ipAddress,omitempty"`
	UserAgent     string                 `json:"userAgent,omitempty"`
	Resource      string                 `json:"resource,omitempty"`
	ResourceID    string                 `json:"resourceId,omitempty"`
	Action        string                 `json:"action,omitempty"`
	CorrelationID string                 `json:"correlationId"`
	BeforeState   map[string]interface{} `json:"beforeState,omitempty"`
	AfterState    map[string]interface{} `json:"afterState,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	StackTrace    string                 `json:"stackTrace,omitempty"`
}

// Entry is one persisted audit row as returned by report queries.
type Entry struct {
	ID            int64     `db:"id" json:"id"`
	CreatedAt     time.Time `db:"created_at" json:"timestamp"`
	EventType     string    `db:"event_type" json:"eventType"`
	Severity      string    `db:"severity" json:"severity"`
	Result        string    `db:"result" json:"result"`
	UserID        *string   `db:"user_id" json:"userId,omitempty"`
	SessionID     string    `db:"session_id" json:"sessionId,omitempty"`
	IPAddress     string    `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent     string    `db:"user_agent" json:"userAgent,omitempty"`
	Action        string    `db:"action" json:"action"`
	Resource      string    `db:"resource" json:"resource"`
	ResourceID    string    `db:"resource_id" json:"resourceId,omitempty"`
	CorrelationID string    `db:"correlation_id" json:"correlationId"`
	Metadata      []byte    `db:"metadata" json:"metadata,omitempty"`
	RedactedData  []byte    `db:"redacted_data" json:"redactedData,omitempty"`
}

// ReportFilters narrows report entries; empty fields match everything.
type ReportFilters struct {
	UserID    string
	Resource  string
	EventType EventType
}

// ReportSummary aggregates report entries.
type ReportSummary struct {
	Total       int                  `json:"total"`
	ByEventType map[EventType]int    `json:"byEventType"`
	BySeverity  map[Severity]int     `json:"bySeverity"`
	ByResult    map[Result]int       `json:"byResult"`
	ByUser      map[string]int       `json:"byUser"`
}

// Report is the result of a report query over persisted events.
type Report struct {
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Entries []Entry       `json:"entries"`
	Summary ReportSummary `json:"summary"`
}

// ReportUnavailableError is returned when a report is requested but
// database persistence is not enabled.
type ReportUnavailableError struct{}

func (e *ReportUnavailableError) Error() string {
	return "audit reports require the database sink to be enabled"
}

// RangeTooLargeError is returned when the requested date range exceeds
// the report cap.
type RangeTooLargeError struct {
	Days int
}

func (e *RangeTooLargeError) Error() string {
	return fmt.Sprintf("report range of %d days exceeds the %d day limit", e.Days, MaxReportRangeDays)
}

// SinkWriteError reports a per-event persistence failure. It is always
// handled inside the writer and never surfaces to callers of Log.
type SinkWriteError struct {
	Sink string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("audit sink %s write failed: %v", e.Sink, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
