// Package otel exports memocache utilization as OpenTelemetry observable
// instruments. Values are read from the registry report and scheduler stats
// inside the collection callback.
package otel

import (
	"context"

	"github.com/unkn0wn-root/memocache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments holds the registered instruments. Call Unregister to stop
// observing.
type Instruments struct {
	reg   *memocache.Registry
	sched *memocache.Scheduler

	entries metric.Int64ObservableGauge
	bytes   metric.Int64ObservableGauge
	steps   metric.Int64ObservableCounter
	cleared metric.Int64ObservableCounter

	registration metric.Registration
}

// Register creates the instruments on meter. sched may be nil.
func Register(meter metric.Meter, reg *memocache.Registry, sched *memocache.Scheduler) (*Instruments, error) {
	in := &Instruments{reg: reg, sched: sched}
	var err error
	if in.entries, err = meter.Int64ObservableGauge("memocache.table.entries",
		metric.WithDescription("Live entries per cache table."),
		metric.WithUnit("{entry}")); err != nil {
		return nil, err
	}
	if in.bytes, err = meter.Int64ObservableGauge("memocache.table.size",
		metric.WithDescription("Estimated retained bytes per cache table."),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if in.steps, err = meter.Int64ObservableCounter("memocache.eviction.steps",
		metric.WithDescription("Eviction steps that cleared a table.")); err != nil {
		return nil, err
	}
	if in.cleared, err = meter.Int64ObservableCounter("memocache.eviction.entries",
		metric.WithDescription("Entries dropped by scheduled clears."),
		metric.WithUnit("{entry}")); err != nil {
		return nil, err
	}
	in.registration, err = meter.RegisterCallback(in.observe, in.entries, in.bytes, in.steps, in.cleared)
	if err != nil {
		return nil, err
	}
	return in, nil
}

// Unregister stops the collection callback.
func (in *Instruments) Unregister() error { return in.registration.Unregister() }

type tablePoint struct {
	name, kind     string
	entries, bytes int64
}

// points aggregates tables sharing a name and kind (the goroutine-owned
// tables of one cache type).
func points(rep memocache.Report) []tablePoint {
	idx := make(map[[2]string]int, len(rep.Tables))
	var out []tablePoint
	for _, t := range rep.Tables {
		k := [2]string{t.Name, t.Kind}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, tablePoint{name: t.Name, kind: t.Kind})
		}
		out[i].entries += int64(t.Entries)
		out[i].bytes += t.Bytes
	}
	return out
}

type snapshot struct {
	tables         []tablePoint
	steps, cleared int64
}

func (in *Instruments) snapshot() snapshot {
	snap := snapshot{tables: points(in.reg.Report())}
	if in.sched != nil {
		st := in.sched.Stats()
		snap.steps, snap.cleared = st.Steps, st.Cleared
	}
	return snap
}

func (in *Instruments) observe(_ context.Context, o metric.Observer) error {
	snap := in.snapshot()
	for _, p := range snap.tables {
		attrs := metric.WithAttributes(attribute.String("table", p.name), attribute.String("kind", p.kind))
		o.ObserveInt64(in.entries, p.entries, attrs)
		o.ObserveInt64(in.bytes, p.bytes, attrs)
	}
	if in.sched != nil {
		o.ObserveInt64(in.steps, snap.steps)
		o.ObserveInt64(in.cleared, snap.cleared)
	}
	return nil
}
