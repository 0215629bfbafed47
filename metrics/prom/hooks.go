package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/unkn0wn-root/memocache"
)

// Hooks counts memocache events. It is both a memocache.Hooks and a
// prometheus.Collector.
type Hooks struct {
	computeFailures  *prometheus.CounterVec
	launchRejections *prometheus.CounterVec
	clears           *prometheus.CounterVec
	clearPanics      *prometheus.CounterVec
}

var (
	_ memocache.Hooks      = (*Hooks)(nil)
	_ prometheus.Collector = (*Hooks)(nil)
)

func NewHooks(namespace string) *Hooks {
	if namespace == "" {
		namespace = defaultNamespace
	}
	vec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Hooks{
		computeFailures:  vec("compute_failures_total", "Background computations that failed or panicked.", "table"),
		launchRejections: vec("launch_rejections_total", "Background launches refused by the runner.", "table"),
		clears:           vec("table_clears_total", "Wholesale table clears.", "table", "reason"),
		clearPanics:      vec("clear_panics_total", "Registered collections that panicked while cleared.", "table"),
	}
}

func (h *Hooks) ComputeFailed(table string, _ any, _ error) {
	h.computeFailures.WithLabelValues(table).Inc()
}

func (h *Hooks) LaunchRejected(table string, _ any) {
	h.launchRejections.WithLabelValues(table).Inc()
}

func (h *Hooks) TableCleared(table string, _ int, reason memocache.ClearReason) {
	h.clears.WithLabelValues(table, string(reason)).Inc()
}

// CycleStarted is exported by Collector from the scheduler stats.
func (h *Hooks) CycleStarted(int, int, int64) {}

func (h *Hooks) ClearPanicked(table string, _ any) {
	h.clearPanics.WithLabelValues(table).Inc()
}

func (h *Hooks) Describe(ch chan<- *prometheus.Desc) {
	h.computeFailures.Describe(ch)
	h.launchRejections.Describe(ch)
	h.clears.Describe(ch)
	h.clearPanics.Describe(ch)
}

func (h *Hooks) Collect(ch chan<- prometheus.Metric) {
	h.computeFailures.Collect(ch)
	h.launchRejections.Collect(ch)
	h.clears.Collect(ch)
	h.clearPanics.Collect(ch)
}
