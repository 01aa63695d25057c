package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the authorization Prometheus collectors
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	GuardDecisions     *prometheus.CounterVec
	ResolveDuration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_cache_lookups_total",
				Help: "Resolution cache lookups by result",
			},
			[]string{"result"},
		),
		CacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_cache_invalidations_total",
				Help: "Resolution cache invalidations by scope",
			},
			[]string{"scope"},
		),
		GuardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_guard_decisions_total",
				Help: "Guard outcomes by guard kind",
			},
			[]string{"guard", "outcome"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authz_resolve_duration_seconds",
				Help:    "Time spent computing effective permissions from the store",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.CacheLookups, m.CacheInvalidations, m.GuardDecisions, m.ResolveDuration)
	}
	return m
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) invalidated(scope string) {
	if m != nil {
		m.CacheInvalidations.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) observeResolve(start time.Time) {
	if m != nil {
		m.ResolveDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordDecision counts one guard outcome
func (m *Metrics) RecordDecision(guard, outcome string) {
	if m != nil {
		m.GuardDecisions.WithLabelValues(guard, outcome).Inc()
	}
}
