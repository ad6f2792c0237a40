package audit

import "context"

// Sink is a persistence target for audit events. A sink only receives
// and stores events; querying is a separate concern.
type Sink interface {
	// Name identifies the sink in diagnostics.
	Name() string
	// Write persists one sanitized event.
	Write(ctx context.Context, event *Event) error
}

// Publisher receives sanitized events after successful persistence, for
// live feeds and caches. Implementations must not block.
type Publisher interface {
	Publish(event Event)
}
