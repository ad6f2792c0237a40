package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"go.uber.org/zap"
)

// FileSink appends events as JSON lines to per-day files under dir,
// rotating the active file once it exceeds maxSize.
type FileSink struct {
	dir     string
	maxSize int64
	logger  *logger.Logger

	mu   sync.Mutex
	file *os.File
	day  string
	size int64
}

// NewFileSink creates the sink and its directory.
func NewFileSink(cfg config.AuditFileConfig, log *logger.Logger) (*FileSink, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return &FileSink{
		dir:     cfg.Dir,
		maxSize: cfg.MaxSize,
		logger:  log,
	}, nil
}

// Name identifies the sink in diagnostics.
func (s *FileSink) Name() string { return "file" }

// Write appends one event as a JSON line. Rotation happens before the
// write that would push the active file over the size cap, so already
// buffered events are never lost to a rollover.
func (s *FileSink) Write(_ context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	day := event.Timestamp.UTC().Format("2006-01-02")
	if day == "" || event.Timestamp.IsZero() {
		day = time.Now().UTC().Format("2006-01-02")
	}

	if err := s.ensureFile(day); err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}

	if s.size+int64(len(line)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return &SinkWriteError{Sink: s.Name(), Err: err}
		}
	}

	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return &SinkWriteError{Sink: s.Name(), Err: err}
	}
	return nil
}

// ensureFile opens the active file for the given day, rolling over to a
// fresh file when the day changes.
func (s *FileSink) ensureFile(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	path := filepath.Join(s.dir, "audit-"+day+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	s.file = file
	s.day = day
	s.size = info.Size()
	return nil
}

// rotate renames the active file with a unix-millis suffix and starts a
// fresh one for the same day.
func (s *FileSink) rotate() error {
	current := filepath.Join(s.dir, "audit-"+s.day+".jsonl")
	// Two rotations can land in the same millisecond; bump the suffix
	// rather than rename onto an earlier rotated file.
	millis := time.Now().UnixMilli()
	rotated := filepath.Join(s.dir, fmt.Sprintf("audit-%s-%d.jsonl", s.day, millis))
	for {
		if _, err := os.Stat(rotated); os.IsNotExist(err) {
			break
		}
		millis++
		rotated = filepath.Join(s.dir, fmt.Sprintf("audit-%s-%d.jsonl", s.day, millis))
	}

	s.file.Close()
	s.file = nil

	if err := os.Rename(current, rotated); err != nil {
		return err
	}

	s.logger.Info("Audit log rotated",
		zap.String("from", current),
		zap.String("to", rotated),
	)

	return s.ensureFile(s.day)
}

// Close closes the active file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
