// Package prom adapts the cache's telemetry snapshot onto Prometheus gauges.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Adapter exports the cache's periodic snapshot as Prometheus gauges. It is
// driven by telemetry.Logs (any caller satisfying telemetry.MetricsSink's
// method set works), not by its own polling loop.
type Adapter struct {
	softEntries     prometheus.Gauge
	weakEntries     prometheus.Gauge
	queueDepth      prometheus.Gauge
	queueDepthBand  *prometheus.GaugeVec
	fetchersBusy    prometheus.Gauge
	fetchersTotal   prometheus.Gauge
	budgetExhausted prometheus.Gauge
}

// New constructs a Prometheus metrics adapter and registers it.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		softEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "soft_entries",
			Help:        "Entries held under soft (strong) retention",
			ConstLabels: constLabels,
		}),
		weakEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "weak_entries",
			Help:        "Entries held under weak retention",
			ConstLabels: constLabels,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_depth",
			Help:        "Total pending fetch queue depth, across priority bands",
			ConstLabels: constLabels,
		}),
		queueDepthBand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_depth_band",
			Help:        "Pending fetch queue depth, by priority band",
			ConstLabels: constLabels,
		}, []string{"band"}),
		fetchersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetchers_busy",
			Help:        "Fetcher worker goroutines currently loading an entry",
			ConstLabels: constLabels,
		}),
		fetchersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetchers_total",
			Help:        "Configured fetcher worker pool size",
			ConstLabels: constLabels,
		}),
		budgetExhausted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "budget_exhausted_total",
			Help:        "Cumulative count of BUDGETED requests that found no time left",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(
		a.softEntries, a.weakEntries, a.queueDepth, a.queueDepthBand,
		a.fetchersBusy, a.fetchersTotal, a.budgetExhausted,
	)
	return a
}

// SetTableLens updates the soft/weak entry-count gauges.
func (a *Adapter) SetTableLens(soft, weak int) {
	a.softEntries.Set(float64(soft))
	a.weakEntries.Set(float64(weak))
}

// SetQueueLen updates the total and per-band queue-depth gauges.
func (a *Adapter) SetQueueLen(total int, perBand []int) {
	a.queueDepth.Set(float64(total))
	for band, n := range perBand {
		a.queueDepthBand.WithLabelValues(strconv.Itoa(band)).Set(float64(n))
	}
}

// SetFetcherBusy updates the busy/total fetcher-worker gauges.
func (a *Adapter) SetFetcherBusy(busy, size int) {
	a.fetchersBusy.Set(float64(busy))
	a.fetchersTotal.Set(float64(size))
}

// SetBudgetExhausted sets the cumulative budget-exhaustion counter gauge.
func (a *Adapter) SetBudgetExhausted(count int64) {
	a.budgetExhausted.Set(float64(count))
}
