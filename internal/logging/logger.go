// Package logging provides structured logging with per-component loggers
// and trace-id propagation, built on logrus.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to carry logging metadata.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	JobIDKey   ContextKey = "job_id"
	AgentIDKey ContextKey = "agent_id"
)

// Config controls logger construction.
type Config struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: "stdout", FilePrefix: "synqx"}
}

// Logger wraps logrus.Logger with a fixed component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger from cfg.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{Logger: base, component: component}
}

// NewDefault builds a Logger with DefaultConfig for ad-hoc use (tests, cmd
// bootstrap before config is loaded).
func NewDefault(component string) *Logger {
	return New(component, DefaultConfig())
}

func resolveOutput(cfg Config) io.Writer {
	if !strings.EqualFold(cfg.Output, "file") {
		return os.Stdout
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return os.Stdout
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "synqx"
	}
	name := filepath.Join("logs", prefix+"-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}

// WithField returns an entry for this logger's component plus one field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields returns an entry for this logger's component plus fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	merged := logrus.Fields{"component": l.component}
	for k, v := range fields {
		merged[k] = v
	}
	return l.Logger.WithFields(merged)
}

// WithContext pulls trace/job/agent ids out of ctx (when present) and
// returns an entry carrying them alongside the component field.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"component": l.component}
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		fields["trace_id"] = v
	}
	if v, ok := ctx.Value(JobIDKey).(string); ok && v != "" {
		fields["job_id"] = v
	}
	if v, ok := ctx.Value(AgentIDKey).(string); ok && v != "" {
		fields["agent_id"] = v
	}
	return l.Logger.WithFields(fields)
}

// WithTraceID returns a context carrying traceID for downstream loggers.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithJobID returns a context carrying jobID for downstream loggers.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetTraceID reads the trace id previously attached by WithTraceID, or ""
// if none is set.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// NewTraceID returns a new random trace id suitable for a request that
// arrived without one.
func NewTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
