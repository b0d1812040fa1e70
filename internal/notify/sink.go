package notify

import (
	"context"
	"errors"
	"log/slog"

	"lifesignal/internal/alerts"
)

// Sink delivers one alert to the outside world.
type Sink interface {
	Deliver(ctx context.Context, rec alerts.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec alerts.Record) error

func (f SinkFunc) Deliver(ctx context.Context, rec alerts.Record) error {
	return f(ctx, rec)
}

// LogSink writes alerts to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, rec alerts.Record) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch rec.Severity {
	case alerts.SeverityWarning:
		level = slog.LevelWarn
	case alerts.SeverityError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, rec.Title,
		"alert_id", rec.ID,
		"rule", rec.Rule,
		"source_id", rec.SourceID,
		"message", rec.Message,
	)
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, rec alerts.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
