package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"lifesignal/internal/alerts"
)

// RetrySink wraps a sink with a delivery rate limit and a bounded
// exponential retry. Once the retries are spent the error is returned and
// the alert is dropped by the caller.
type RetrySink struct {
	next       Sink
	limiter    *rate.Limiter
	maxTries   uint
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// RetryOptions configures RetrySink.
type RetryOptions struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// PerMinute caps deliveries per minute. Zero disables the limit.
	PerMinute int
	// BackOff overrides the retry schedule, mainly for tests.
	BackOff func() backoff.BackOff
	Logger  *slog.Logger
}

// NewRetrySink wraps next.
func NewRetrySink(next Sink, opts RetryOptions) *RetrySink {
	limit := rate.Inf
	burst := 1
	if opts.PerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.PerMinute))
		burst = opts.PerMinute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	newBackOff := opts.BackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrySink{
		next:       next,
		limiter:    rate.NewLimiter(limit, burst),
		maxTries:   uint(opts.MaxRetries) + 1,
		newBackOff: newBackOff,
		logger:     logger,
	}
}

func (s *RetrySink) Deliver(ctx context.Context, rec alerts.Record) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, s.next.Deliver(ctx, rec)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Warn("alert delivery failed, retrying",
				"alert_id", rec.ID,
				"attempt", attempt,
				"retry_in", wait,
				"error", err,
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("deliver alert %s after %d attempt(s): %w", rec.ID, attempt, err)
	}
	return nil
}
