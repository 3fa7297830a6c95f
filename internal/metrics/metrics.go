// Package metrics provides Prometheus metrics for the sheet engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recompute outcomes
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeStale      = "stale"
)

// SheetMetrics collects sheet engine metrics on a private registry.
// A nil *SheetMetrics is valid and records nothing.
type SheetMetrics struct {
	registry *prometheus.Registry

	RecomputesTotal   *prometheus.CounterVec
	RecomputeDuration *prometheus.HistogramVec
	RefreshesTotal    *prometheus.CounterVec
	RowsLoaded        *prometheus.GaugeVec
	RowsSkipped       *prometheus.CounterVec
	RowsCollapsed     *prometheus.CounterVec
	RowsVisible       *prometheus.GaugeVec
}

// New creates and registers all sheet metrics
func New() *SheetMetrics {
	registry := prometheus.NewRegistry()

	m := &SheetMetrics{
		registry: registry,

		RecomputesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_recomputes_total",
				Help: "Recompute requests by outcome",
			},
			[]string{"outcome"},
		),
		RecomputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheet_recompute_duration_seconds",
				Help:    "Time from stage to resolution of a recompute",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"outcome"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_refreshes_total",
				Help: "Row set refreshes per sheet",
			},
			[]string{"sheet"},
		),
		RowsLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sheet_rows_loaded",
				Help: "Rows loaded on the last refresh",
			},
			[]string{"sheet"},
		),
		RowsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_rows_skipped_total",
				Help: "Malformed rows skipped while loading",
			},
			[]string{"sheet"},
		),
		RowsCollapsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_rows_collapsed_total",
				Help: "Loaded rows dropped because another row had the same key",
			},
			[]string{"sheet"},
		),
		RowsVisible: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sheet_rows_visible",
				Help: "Rows passing the current filter",
			},
			[]string{"sheet"},
		),
	}

	registry.MustRegister(
		m.RecomputesTotal,
		m.RecomputeDuration,
		m.RefreshesTotal,
		m.RowsLoaded,
		m.RowsSkipped,
		m.RowsCollapsed,
		m.RowsVisible,
	)

	return m
}

// Registry returns the prometheus registry
func (m *SheetMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *SheetMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRecompute records one resolved recompute
func (m *SheetMetrics) ObserveRecompute(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RecomputesTotal.WithLabelValues(outcome).Inc()
	m.RecomputeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveRefresh records a completed refresh
func (m *SheetMetrics) ObserveRefresh(sheet string, loaded, skipped int) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(sheet).Inc()
	m.RowsLoaded.WithLabelValues(sheet).Set(float64(loaded))
	if skipped > 0 {
		m.RowsSkipped.WithLabelValues(sheet).Add(float64(skipped))
	}
}

// ObserveCollapsed records rows dropped as duplicates of an earlier key
func (m *SheetMetrics) ObserveCollapsed(sheet string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsCollapsed.WithLabelValues(sheet).Add(float64(n))
}

// SetVisible records how many rows passed the filter on the last view
func (m *SheetMetrics) SetVisible(sheet string, n int) {
	if m == nil {
		return
	}
	m.RowsVisible.WithLabelValues(sheet).Set(float64(n))
}
