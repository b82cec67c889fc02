// Package logging provides leveled, structured JSON logging for the daemon.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name to a Level. Unknown names default to info.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Entry is one structured log line.
type Entry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Logger writes JSON log lines to an underlying writer.
type Logger struct {
	mu    sync.Mutex
	out   io.WriteCloser
	level Level
	path  string
}

// New creates a logger appending to the file at path.
func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{out: f, level: LevelInfo, path: path}, nil
}

// NewWithWriter creates a logger over an arbitrary writer (used by tests and
// for stderr logging).
func NewWithWriter(w io.WriteCloser) *Logger {
	return &Logger{out: w, level: LevelInfo}
}

// SetLevel sets the minimum level that will be written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		return l.out.Close()
	}
	return nil
}

// FilePath returns the log file path, if file-backed.
func (l *Logger) FilePath() string {
	return l.path
}

func (l *Logger) log(level Level, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := Entry{
		Time:    time.Now().UTC().Format(time.RFC3339),
		Level:   level.String(),
		Message: msg,
	}

	if len(keyvals) > 0 {
		entry.Fields = make(map[string]any, len(keyvals)/2)
		for i := 0; i+1 < len(keyvals); i += 2 {
			key, ok := keyvals[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", keyvals[i])
			}
			// Errors marshal to {} so store their string form.
			if err, ok := keyvals[i+1].(error); ok {
				entry.Fields[key] = err.Error()
			} else {
				entry.Fields[key] = keyvals[i+1]
			}
		}
		if len(keyvals)%2 != 0 {
			entry.Fields["_extra"] = keyvals[len(keyvals)-1]
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.out.Write(append(data, '\n'))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals...) }

// Info logs an info message.
func (l *Logger) Info(msg string, keyvals ...any) { l.log(LevelInfo, msg, keyvals...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, keyvals ...any) { l.log(LevelWarn, msg, keyvals...) }

// Error logs an error message.
func (l *Logger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals...) }
