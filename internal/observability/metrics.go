package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles the engine's Prometheus metrics and provides a
// ready-to-serve /metrics handler.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	FixesIngested    *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	GradeEvals       *prometheus.CounterVec
	ClaimVerdicts    *prometheus.CounterVec
	IndexTerritories prometheus.Gauge
	SnapshotRefresh  prometheus.Histogram

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fixes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_fixes_ingested_total",
		Help: "Fixes handled at ingestion, labeled by outcome (accepted or drop reason).",
	}, []string{"outcome"})
	fixes, err := registerCounterVec(reg, fixes, "territory_fixes_ingested_total")
	if err != nil {
		return nil, err
	}

	grades := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_grade_evaluations_total",
		Help: "Proximity evaluations, labeled by resulting warning grade.",
	}, []string{"grade"})
	grades, err = registerCounterVec(reg, grades, "territory_grade_evaluations_total")
	if err != nil {
		return nil, err
	}

	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_claim_verdicts_total",
		Help: "Claim validation verdicts, labeled by reason code.",
	}, []string{"reason"})
	verdicts, err = registerCounterVec(reg, verdicts, "territory_claim_verdicts_total")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "territory_active_sessions",
		Help: "Currently tracking claim sessions.",
	}), "territory_active_sessions")
	if err != nil {
		return nil, err
	}

	indexed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "territory_indexed_territories",
		Help: "Territories held in the spatial index snapshot.",
	}), "territory_indexed_territories")
	if err != nil {
		return nil, err
	}

	refresh := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "territory_snapshot_refresh_seconds",
		Help:    "Duration of territory snapshot refreshes.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	refresh, err = registerHistogram(reg, refresh, "territory_snapshot_refresh_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_http_requests_total",
		Help: "Handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	httpRequests, err = registerCounterVec(reg, httpRequests, "territory_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "territory_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method"})
	httpDurations, err = registerHistogramVec(reg, httpDurations, "territory_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:         gatherer,
		FixesIngested:    fixes,
		ActiveSessions:   sessions,
		GradeEvals:       grades,
		ClaimVerdicts:    verdicts,
		IndexTerritories: indexed,
		SnapshotRefresh:  refresh,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFix records one ingestion outcome. All observers are nil-safe so
// call sites don't need metric plumbing guards.
func (c *EngineCollector) ObserveFix(outcome string) {
	if c == nil || c.FixesIngested == nil {
		return
	}
	c.FixesIngested.WithLabelValues(outcome).Inc()
}

// ObserveGrade records one proximity evaluation.
func (c *EngineCollector) ObserveGrade(grade string) {
	if c == nil || c.GradeEvals == nil {
		return
	}
	c.GradeEvals.WithLabelValues(grade).Inc()
}

// ObserveVerdict records one claim verdict.
func (c *EngineCollector) ObserveVerdict(reason string) {
	if c == nil || c.ClaimVerdicts == nil {
		return
	}
	c.ClaimVerdicts.WithLabelValues(reason).Inc()
}

// SetActiveSessions updates the live session gauge.
func (c *EngineCollector) SetActiveSessions(n int) {
	if c == nil || c.ActiveSessions == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// ObserveSnapshot records a snapshot refresh and the resulting index size.
func (c *EngineCollector) ObserveSnapshot(territories int, took time.Duration) {
	if c == nil {
		return
	}
	if c.IndexTerritories != nil {
		c.IndexTerritories.Set(float64(territories))
	}
	if c.SnapshotRefresh != nil {
		c.SnapshotRefresh.Observe(took.Seconds())
	}
}

// ObserveHTTP records one handled HTTP request.
func (c *EngineCollector) ObserveHTTP(route, method string, code int, took time.Duration) {
	if c == nil {
		return
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, method, fmt.Sprintf("%d", code)).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route, method).Observe(took.Seconds())
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
