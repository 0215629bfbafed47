// Package prom exports memocache utilization to Prometheus.
//
// Collector reads the registry report and scheduler stats at scrape time, so
// nothing is recorded on the cache hot path. Hooks turns memocache events
// into counters; register both with the same prometheus.Registerer.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/unkn0wn-root/memocache"
)

const defaultNamespace = "memocache"

type tableKey struct{ name, kind string }

// Collector is a prometheus.Collector over a memocache registry and,
// optionally, its eviction scheduler.
type Collector struct {
	reg   *memocache.Registry
	sched *memocache.Scheduler

	entries  *prometheus.Desc
	bytes    *prometheus.Desc
	tables   *prometheus.Desc
	cycles   *prometheus.Desc
	steps    *prometheus.Desc
	cleared  *prometheus.Desc
	interval *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector. sched may be nil; namespace "" => "memocache".
func NewCollector(namespace string, reg *memocache.Registry, sched *memocache.Scheduler) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	return &Collector{
		reg:   reg,
		sched: sched,
		entries: prometheus.NewDesc(name("table_entries"),
			"Live entries per cache table.", []string{"table", "kind"}, nil),
		bytes: prometheus.NewDesc(name("table_bytes"),
			"Estimated retained bytes per cache table.", []string{"table", "kind"}, nil),
		tables: prometheus.NewDesc(name("tables"),
			"Registered collections.", nil, nil),
		cycles: prometheus.NewDesc(name("eviction_cycles_total"),
			"Eviction cycles started.", nil, nil),
		steps: prometheus.NewDesc(name("eviction_steps_total"),
			"Eviction steps that cleared a table.", nil, nil),
		cleared: prometheus.NewDesc(name("evicted_entries_total"),
			"Entries dropped by scheduled clears.", nil, nil),
		interval: prometheus.NewDesc(name("eviction_step_interval_ticks"),
			"Ticks between two eviction steps in the current cycle.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.bytes
	ch <- c.tables
	if c.sched != nil {
		ch <- c.cycles
		ch <- c.steps
		ch <- c.cleared
		ch <- c.interval
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	rep := c.reg.Report()

	// goroutine-owned tables of one cache type share a name; sum them so
	// label sets stay unique
	type sums struct{ entries, bytes int64 }
	agg := make(map[tableKey]*sums, len(rep.Tables))
	order := make([]tableKey, 0, len(rep.Tables))
	for _, t := range rep.Tables {
		k := tableKey{t.Name, t.Kind}
		s, ok := agg[k]
		if !ok {
			s = &sums{}
			agg[k] = s
			order = append(order, k)
		}
		s.entries += int64(t.Entries)
		s.bytes += t.Bytes
	}
	for _, k := range order {
		s := agg[k]
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.entries), k.name, k.kind)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.bytes), k.name, k.kind)
	}
	ch <- prometheus.MustNewConstMetric(c.tables, prometheus.GaugeValue, float64(len(rep.Tables)))

	if c.sched == nil {
		return
	}
	st := c.sched.Stats()
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(st.Cycles))
	ch <- prometheus.MustNewConstMetric(c.steps, prometheus.CounterValue, float64(st.Steps))
	ch <- prometheus.MustNewConstMetric(c.cleared, prometheus.CounterValue, float64(st.Cleared))
	ch <- prometheus.MustNewConstMetric(c.interval, prometheus.GaugeValue, float64(st.StepInterval))
}
