package audithook

import (
	"context"
	"log/slog"
)

// SlogRecorder writes audit events to a structured logger. Failure outcomes
// and critical events are logged at Error, warnings at Warn.
type SlogRecorder struct {
	Logger *slog.Logger
}

// NewSlogRecorder returns a recorder logging through logger, or through
// slog.Default when logger is nil.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{Logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, event *AuditEvent) error {
	level := slog.LevelInfo
	switch {
	case event.Severity == SeverityCritical || event.Severity == SeverityError:
		level = slog.LevelError
	case event.Severity == SeverityWarning:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("action", event.Action),
		slog.String("resource", event.Resource),
		slog.String("resource_id", event.ResourceID),
		slog.String("category", event.Category),
		slog.String("outcome", event.Outcome),
	}
	if event.Actor != "" {
		attrs = append(attrs, slog.String("actor", event.Actor))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		meta := make([]any, 0, len(event.Metadata))
		for k, v := range event.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	r.Logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}
