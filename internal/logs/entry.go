// Package logs provides the in-memory log buffer and persistent event
// journal for the node manager. The journal is what the logs command
// queries; the ring buffer backs the live log view.
package logs

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one recorded manager event.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// String returns a human-readable representation.
func (e *Entry) String() string {
	ts := e.Timestamp.Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(e.Level)
	if e.Details != "" {
		return fmt.Sprintf("[%s] [%s] %s - %s", ts, level, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] [%s] %s", ts, level, e.Message)
}
