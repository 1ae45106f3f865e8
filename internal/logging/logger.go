package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// ContextLogger writes JSON entries and stamps the trace and span ids of the
// context onto every *WithTracing call, so log lines join up with spans.
type ContextLogger struct {
	*logrus.Logger
}

var fieldMap = logrus.FieldMap{
	logrus.FieldKeyTime:  "timestamp",
	logrus.FieldKeyLevel: "level",
	logrus.FieldKeyMsg:   "message",
}

// NewLogger writes to stdout. Unknown levels fall back to info.
func NewLogger(level string) *ContextLogger {
	return NewLoggerWithOutput(os.Stdout, level)
}

func NewLoggerWithOutput(out io.Writer, level string) *ContextLogger {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	return &ContextLogger{Logger: &logrus.Logger{
		Out:       out,
		Formatter: &logrus.JSONFormatter{FieldMap: fieldMap, TimestampFormat: time.RFC3339Nano},
		Hooks:     make(logrus.LevelHooks),
		Level:     lvl,
		ExitFunc:  os.Exit,
	}}
}

// WithService stamps service and version on every entry. Fields set by the
// caller win.
func (l *ContextLogger) WithService(name, version string) *ContextLogger {
	l.AddHook(defaultFields{"service": name, "version": version})
	return l
}

type defaultFields logrus.Fields

func (defaultFields) Levels() []logrus.Level { return logrus.AllLevels }

func (f defaultFields) Fire(entry *logrus.Entry) error {
	for k, v := range f {
		if _, set := entry.Data[k]; !set {
			entry.Data[k] = v
		}
	}
	return nil
}

func (l *ContextLogger) WithTracing(ctx context.Context) *logrus.Entry {
	entry := l.WithContext(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return entry
}

func (l *ContextLogger) entry(ctx context.Context, fields logrus.Fields, err error) *logrus.Entry {
	entry := l.WithTracing(ctx).WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}

func (l *ContextLogger) InfoWithTracing(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields, nil).Info(msg)
}

func (l *ContextLogger) ErrorWithTracing(ctx context.Context, msg string, err error, fields logrus.Fields) {
	l.entry(ctx, fields, err).Error(msg)
}

func (l *ContextLogger) WarnWithTracing(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields, nil).Warn(msg)
}

func (l *ContextLogger) DebugWithTracing(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields, nil).Debug(msg)
}

// RequestLogger logs one entry per HTTP request. Requests to quietPaths,
// such as health checks and metric scrapes, are logged at debug; 5xx
// responses at error.
func (l *ContextLogger) RequestLogger(quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := l.entry(c.Request.Context(), fields, nil)
		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
		case quiet[c.Request.URL.Path]:
			entry.Debug("HTTP request completed")
		default:
			entry.Info("HTTP request completed")
		}
	}
}
