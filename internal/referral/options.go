package referral

import (
	"time"

	"rewardengine/internal/metrics"
)

type options struct {
	now      func() time.Time
	attempts int
	delay    time.Duration
	metrics  *metrics.Collector
}

func defaultOptions() options {
	return options{
		now:      time.Now,
		attempts: 3,
		delay:    50 * time.Millisecond,
	}
}

type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRetry bounds the retries of a transaction that failed transiently.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.attempts = attempts
		o.delay = delay
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}
