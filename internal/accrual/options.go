package accrual

import (
	"time"

	"rewardengine/internal/metrics"
)

type options struct {
	now      func() time.Time
	speed    int
	queue    int
	attempts int
	delay    time.Duration
	metrics  *metrics.Collector
	observe  []func(Report)
}

func defaultOptions() options {
	return options{
		now:      time.Now,
		speed:    8,
		queue:    64,
		attempts: 3,
		delay:    50 * time.Millisecond,
	}
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithWorkers sets how many investments are processed in parallel and
// how many may wait in the queue.
func WithWorkers(speed, queue int) Option {
	return func(o *options) {
		o.speed = speed
		o.queue = queue
	}
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.attempts = attempts
		o.delay = delay
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithObserver registers fn to receive every tick report.
func WithObserver(fn func(Report)) Option {
	return func(o *options) { o.observe = append(o.observe, fn) }
}
