package faidx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for index and fetch activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	FetchedBases  *prometheus.CounterVec
	Loads         *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	SeekResidual  prometheus.Histogram
	LiveIndexes   prometheus.Gauge
	OpenSessions  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faigz",
			Subsystem: "session",
			Name:      "fetches_total",
		}, []string{"kind", "result"}),
		FetchedBases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faigz",
			Subsystem: "session",
			Name:      "fetched_bases_total",
		}, []string{"kind"}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faigz",
			Subsystem: "index",
			Name:      "loads_total",
		}, []string{"source"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faigz",
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		SeekResidual: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faigz",
			Subsystem: "session",
			Name:      "seek_residual_bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}),
		LiveIndexes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faigz",
			Subsystem: "index",
			Name:      "live",
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faigz",
			Subsystem: "session",
			Name:      "open",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Fetches, m.FetchedBases, m.Loads, m.BuildDuration,
			m.SeekResidual, m.LiveIndexes, m.OpenSessions)
	}
	return m
}

func (m *Metrics) fetch(kind string, bases int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(kind, result).Inc()
	if bases > 0 {
		m.FetchedBases.WithLabelValues(kind).Add(float64(bases))
	}
}

func (m *Metrics) loaded(source string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(source).Inc()
}

func (m *Metrics) built(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) seeked(residual int64) {
	if m == nil {
		return
	}
	m.SeekResidual.Observe(float64(residual))
}

func (m *Metrics) indexes(delta float64) {
	if m == nil {
		return
	}
	m.LiveIndexes.Add(delta)
}

func (m *Metrics) sessions(delta float64) {
	if m == nil {
		return
	}
	m.OpenSessions.Add(delta)
}
