// Package notify is the surface through which the core reports to the user.
// The core only emits a semantic level and a human-readable message; the
// embedding UI decides how to render them.
package notify

import (
	"log/slog"
	"sync"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notifier interface {
	Notify(level Level, message string)
}

// LogNotifier is the default sink: it writes notifications to the logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(level Level, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch level {
	case LevelError:
		logger.Error(message, "notify", level)
	case LevelWarning:
		logger.Warn(message, "notify", level)
	default:
		logger.Info(message, "notify", level)
	}
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

type Entry struct {
	Level   Level
	Message string
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByLevel returns the messages recorded at one level.
func (r *Recorder) ByLevel(level Level) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
