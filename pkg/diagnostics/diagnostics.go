// Package diagnostics reports failures that must not reach the caller.
package diagnostics

import (
	"context"
	"log/slog"

	"github.com/dukex/actiontrack/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// Sink receives fire-and-forget failure reports.
type Sink interface {
	Report(ctx context.Context, message string, err error)
}

// LogSink writes reports to a logger and marks the active span as failed.
type LogSink struct {
	logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "diagnostics")}
}

func (s *LogSink) Report(ctx context.Context, message string, err error) {
	s.logger.ErrorContext(ctx, message, "error", err)

	otelhelper.SetError(trace.SpanFromContext(ctx), err)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, message string, err error)

func (f SinkFunc) Report(ctx context.Context, message string, err error) {
	f(ctx, message, err)
}
