package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"github.com/raeburnlaw/caseguard/internal/redact"
	"go.uber.org/zap"
)

// internalActorRole is the fixed role used when sanitizing audit
// payloads, so audit-log sanitization is never influenced by the acting
// user's own redaction policy.
const internalActorRole = "audit-writer"

// Writer buffers audit events in memory and flushes them to the
// configured sinks. Log never blocks on I/O and a persistence failure
// never surfaces to the business operation that produced the event.
type Writer struct {
	cfg      config.AuditConfig
	logger   *logger.Logger
	redactor *redact.Redactor

	primary  Sink         // database sink, nil when disabled
	fallback Sink         // file sink, nil when disabled
	querier  entryQuerier // report source, nil when database disabled

	publishers []Publisher

	mu     sync.Mutex
	buffer []*Event

	kick      chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWriter constructs the writer and its sinks from configuration. The
// background flush loop starts when Start is called.
func NewWriter(cfg config.AuditConfig, redactor *redact.Redactor, log *logger.Logger) (*Writer, error) {
	w := &Writer{
		cfg:      cfg,
		logger:   log,
		redactor: redactor,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	if cfg.File.Enabled {
		fileSink, err := NewFileSink(cfg.File, log.WithComponent("audit.file"))
		if err != nil {
			return nil, err
		}
		w.fallback = fileSink
	}
	if cfg.Database.Enabled {
		dbSink, err := NewDatabaseSink(cfg.Database, log.WithComponent("audit.database"))
		if err != nil {
			return nil, err
		}
		w.primary = dbSink
		w.querier = dbSink
	}

	log.Info("Audit trail writer initialized",
		zap.Bool("database_sink", w.primary != nil),
		zap.Bool("file_sink", w.fallback != nil),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	return w, nil
}

// AddPublisher registers a live-feed publisher. Publishers only ever
// see sanitized events.
func (w *Writer) AddPublisher(p Publisher) {
	w.publishers = append(w.publishers, p)
}

// Log constructs defaults for the event and appends it to the buffer.
// A CRITICAL event additionally kicks an immediate best-effort flush.
func (w *Writer) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, &event)
	w.mu.Unlock()

	if event.Severity == SeverityCritical {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// BufferLen reports how many events are currently buffered.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Start launches the periodic flush loop.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Flush(context.Background())
		case <-w.kick:
			w.Flush(context.Background())
		case <-w.stop:
			return
		}
	}
}

// Flush snapshots the buffer, clears it, and persists the snapshot.
// Events logged while the flush's own I/O is in progress stay buffered
// for the next flush; nothing is lost or double flushed. Per-event
// writes run concurrently so one slow event does not delay the rest,
// and failures stay isolated per event.
func (w *Writer) Flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, event := range batch {
		wg.Add(1)
		go func(event *Event) {
			defer wg.Done()
			w.persist(ctx, event)
		}(event)
	}
	wg.Wait()
}

// persist sanitizes one event and writes it to the first reachable
// sink: database, then file. With no sink reachable the event is
// dropped with a diagnostic, never an error to the caller.
func (w *Writer) persist(ctx context.Context, event *Event) {
	w.sanitize(event)

	if w.primary != nil {
		writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout())
		err := w.primary.Write(writeCtx, event)
		cancel()
		if err == nil {
			w.publish(*event)
			return
		}
		w.logger.Warn("Audit database write failed, falling back to file",
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
	}

	if w.fallback != nil {
		writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout())
		err := w.fallback.Write(writeCtx, event)
		cancel()
		if err == nil {
			w.publish(*event)
			return
		}
		w.logger.Error("Audit file write failed",
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
		return
	}

	if w.primary == nil {
		w.logger.Error("Audit event dropped: no sink configured",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
		)
	}
}

func (w *Writer) writeTimeout() time.Duration {
	if w.cfg.WriteTimeout > 0 {
		return w.cfg.WriteTimeout
	}
	return 3 * time.Second
}

// sanitize redacts every free-text and record-valued field in place,
// under the writer's fixed internal actor role.
func (w *Writer) sanitize(event *Event) {
	opts := redact.Options{Role: internalActorRole}

	if event.Details != nil {
		event.Details, _ = w.redactor.RedactObject(event.Details, opts)
	}
	if event.BeforeState != nil {
		event.BeforeState, _ = w.redactor.RedactObject(event.BeforeState, opts)
	}
	if event.AfterState != nil {
		event.AfterState, _ = w.redactor.RedactObject(event.AfterState, opts)
	}
	if event.ErrorMessage != "" {
		event.ErrorMessage = w.redactor.Redact(event.ErrorMessage, opts).Redacted
	}
	if event.StackTrace != "" {
		event.StackTrace = w.redactor.Redact(event.StackTrace, opts).Redacted
	}
}

func (w *Writer) publish(event Event) {
	for _, p := range w.publishers {
		p.Publish(event)
	}
}

// Close stops the flush loop, performs one final synchronous flush, and
// closes the sinks. No buffered event is lost on graceful shutdown.
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
	w.Flush(ctx)

	if closer, ok := w.fallback.(*FileSink); ok && closer != nil {
		if err := closer.Close(); err != nil {
			w.logger.Warn("Failed to close audit file sink", zap.Error(err))
		}
	}
	if closer, ok := w.primary.(*DatabaseSink); ok && closer != nil {
		if err := closer.Close(); err != nil {
			w.logger.Warn("Failed to close audit database sink", zap.Error(err))
		}
	}
	return nil
}
