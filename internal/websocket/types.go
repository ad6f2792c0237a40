package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/raeburnlaw/caseguard/internal/audit"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAudit carries one sanitized audit event
	EventTypeAudit EventType = "audit_event"
	// EventTypeRedaction summarizes a redaction that fired
	EventTypeRedaction EventType = "redaction"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// AuditFeedEvent wraps a sanitized audit event for the dashboard
type AuditFeedEvent struct {
	Event audit.Event `json:"event"`
}

// RedactionFeedEvent summarizes rule hits without carrying originals
type RedactionFeedEvent struct {
	RuleIDs    []string `json:"ruleIds"`
	Categories []string `json:"categories"`
	Matches    int      `json:"matches"`
	Level      string   `json:"level"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	BufferedEvents   int    `json:"bufferedEvents"`
	ActiveRules      int    `json:"activeRules"`
	ConnectedClients int    `json:"connectedClients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"clientId"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string
}
