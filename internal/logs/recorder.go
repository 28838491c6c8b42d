package logs

import (
	"log/slog"
	"time"
)

// Recorder is the process-wide event recorder, constructed once at startup
// and handed by reference to every component. It fans each event out to
// the live ring buffer, the persistent journal (when present) and slog.
type Recorder struct {
	buffer  *RingBuffer
	journal *Journal
	logger  *slog.Logger
}

// NewRecorder creates a recorder. journal may be nil (memory-only).
func NewRecorder(journal *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		buffer:  NewRingBuffer(DefaultCapacity),
		journal: journal,
		logger:  logger,
	}
}

// Buffer exposes the live log view.
func (r *Recorder) Buffer() *RingBuffer {
	return r.buffer
}

func (r *Recorder) record(level, message, details string) {
	entry := &Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Details:   details,
	}
	r.buffer.Add(entry)
	if r.journal != nil {
		if err := r.journal.Append(entry); err != nil {
			r.logger.Warn("failed to journal event", "error", err)
		}
	}

	switch level {
	case LevelDebug:
		r.logger.Debug(message, "details", details)
	case LevelWarn:
		r.logger.Warn(message, "details", details)
	case LevelError:
		r.logger.Error(message, "details", details)
	default:
		r.logger.Info(message, "details", details)
	}
}

// Debug records a debug-level event.
func (r *Recorder) Debug(message, details string) { r.record(LevelDebug, message, details) }

// Info records an info-level event.
func (r *Recorder) Info(message, details string) { r.record(LevelInfo, message, details) }

// Warn records a warn-level event.
func (r *Recorder) Warn(message, details string) { r.record(LevelWarn, message, details) }

// Error records an error-level event.
func (r *Recorder) Error(message, details string) { r.record(LevelError, message, details) }
