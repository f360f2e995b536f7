// Package metrics exposes Prometheus collectors for the accrual engine,
// the reward attributor, the referral lifecycle and settlements.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. All methods are safe on a nil
// receiver so components can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	investments  *prometheus.CounterVec
	attributions *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	referrals    *prometheus.CounterVec
	lockSkips    prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "accrual"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "runs_total",
		Help:      "Completed accrual ticks",
	})
	c.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "duration_seconds",
		Help:      "Wall time of one accrual tick",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	c.investments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "investments_total",
		Help:      "Investments processed by ticks, by result (accrued, matured, failed)",
	}, []string{"result"})
	c.attributions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "referral",
		Name:      "attributions_total",
		Help:      "Reward attributions, by result (credited, skipped, failed)",
	}, []string{"result"})
	c.settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "cashouts_total",
		Help:      "Cash-outs, by kind (matured, early, claim)",
	}, []string{"kind"})
	c.referrals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "referral",
		Name:      "lifecycle_total",
		Help:      "Referral lifecycle events (applied, activated, rolled)",
	}, []string{"event"})
	c.lockSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "overlap_skips_total",
		Help:      "Ticks skipped because another tick held the lock",
	})

	c.registry.MustRegister(c.ticks, c.tickDuration, c.investments, c.attributions, c.settlements, c.referrals, c.lockSkips)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickDuration.Observe(d.Seconds())
}

func (c *Collector) Investment(result string) {
	if c == nil {
		return
	}
	c.investments.WithLabelValues(result).Inc()
}

func (c *Collector) Attribution(result string) {
	if c == nil {
		return
	}
	c.attributions.WithLabelValues(result).Inc()
}

func (c *Collector) Settlement(kind string) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(kind).Inc()
}

func (c *Collector) Referral(event string) {
	if c == nil {
		return
	}
	c.referrals.WithLabelValues(event).Inc()
}

func (c *Collector) OverlapSkipped() {
	if c == nil {
		return
	}
	c.lockSkips.Inc()
}
