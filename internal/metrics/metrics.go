// Package metrics holds the Prometheus collectors for check cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeDone         = "done"
	OutcomeNotifyFailed = "notify_failed"
	OutcomeFailed       = "failed"
)

// Metrics bundles the collectors on a dedicated registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	CyclesTotal    *prometheus.CounterVec
	NewItemsTotal  prometheus.Counter
	ItemsSeenTotal prometheus.Counter
	StageErrors    *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
}

// New constructs and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	cycles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checker_cycles_total",
			Help: "Check cycles by outcome.",
		},
		[]string{"outcome"},
	)
	newItems := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checker_new_items_total",
			Help: "Items reported as new.",
		},
	)
	seen := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checker_items_seen_total",
			Help: "Items that passed the keyword filter.",
		},
	)
	stageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checker_stage_errors_total",
			Help: "Cycle failures by stage.",
		},
		[]string{"stage"},
	)
	scrapeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checker_scrape_duration_seconds",
			Help:    "Duration of the scrape step.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
	)

	registry.MustRegister(cycles, newItems, seen, stageErrors, scrapeDuration)

	return &Metrics{
		Registry:       registry,
		CyclesTotal:    cycles,
		NewItemsTotal:  newItems,
		ItemsSeenTotal: seen,
		StageErrors:    stageErrors,
		ScrapeDuration: scrapeDuration,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncCycle counts a finished cycle.
func (m *Metrics) IncCycle(outcome string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// AddItems records the seen and new item counts of one cycle.
func (m *Metrics) AddItems(seen, fresh int) {
	if m == nil {
		return
	}
	m.ItemsSeenTotal.Add(float64(seen))
	m.NewItemsTotal.Add(float64(fresh))
}

// IncStageError counts a failure in stage.
func (m *Metrics) IncStageError(stage string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage).Inc()
}

// ObserveScrape records how long a scrape took.
func (m *Metrics) ObserveScrape(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}
