// Package audit provides a file-backed, append-only implementation of
// audit.Sink: one JSON object per line, newline-delimited.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mcpfirewall/sidecar/internal/domain/audit"
)

// FileSink appends audit.Events to a file, one compact JSON object per
// line. It holds a long-lived append handle (opened once, reused for
// every write) rather than reopening per write.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
	now    func() time.Time
}

// NewFileSink opens (creating if necessary) the audit log at path in
// append mode.
func NewFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log at %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{file: f, logger: logger, now: time.Now}, nil
}

// Write serializes e as one JSON line, assigning Timestamp at write time.
// A marshal or write failure is logged internally and also returned; the
// HTTP pipeline logs the returned error and never surfaces it to the
// client.
func (s *FileSink) Write(e audit.Event) error {
	e.Timestamp = s.now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("audit: failed to marshal event", "error", err, "request_id", e.RequestID)
		return err
	}
	line := append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(line); err != nil {
		s.logger.Error("audit: failed to write event", "error", err, "request_id", e.RequestID)
		return err
	}
	return nil
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var _ audit.Sink = (*FileSink)(nil)
