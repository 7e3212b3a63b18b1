package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/linkctl/internal/adapter"
)

// AuditEntry represents a single audit log entry. It carries the verb and the
// outcome only; command values never reach the audit log.
type AuditEntry struct {
	Timestamp     time.Time `json:"ts"`
	CorrelationID string    `json:"correlationId"`
	Source        string    `json:"source"`
	Identity      int       `json:"identity,omitempty"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	Code          string    `json:"code"`
	LatencyMs     int64     `json:"latencyMs"`
}

// Rotation bounds the audit file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
}

// NewLogger creates an audit logger writing logDir/audit.jsonl with default
// rotation.
func NewLogger(logDir string) (*Logger, error) {
	return NewLoggerWithRotation(logDir, Rotation{MaxSizeMB: 5, MaxBackups: 5, MaxAgeDays: 90})
}

// NewLoggerWithRotation creates an audit logger with explicit rotation limits.
func NewLoggerWithRotation(logDir string, rotation Rotation) (*Logger, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")

	// Create the file up front so permission problems surface at startup.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = file.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
		},
	}, nil
}

type contextKey int

const (
	correlationKey contextKey = iota
	sourceKey
)

// WithCorrelationID tags ctx so every entry logged with it shares id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// WithSource records where requests on ctx came from ("serial", "console", "cli").
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// LogAction logs an audit record for a dispatched verb.
func (l *Logger) LogAction(ctx context.Context, action string, identity int, outcome string, err error, latency time.Duration) {
	entry := AuditEntry{
		Timestamp:     time.Now().UTC(),
		CorrelationID: l.getCorrelationID(ctx),
		Source:        l.getSource(ctx),
		Identity:      identity,
		Action:        action,
		Outcome:       outcome,
		Code:          adapter.Code(err),
		LatencyMs:     latency.Milliseconds(),
	}

	l.writeEntry(entry)
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

func (l *Logger) getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (l *Logger) getSource(ctx context.Context) string {
	if source, ok := ctx.Value(sourceKey).(string); ok && source != "" {
		return source
	}
	return "unknown"
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate moves the current file aside with a timestamp suffix and starts a
// new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit logger is closed")
	}
	return l.out.Rotate()
}
