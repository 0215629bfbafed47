package prom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unkn0wn-root/memocache"
)

func TestCollectorReportsTables(t *testing.T) {
	reg := memocache.NewRegistry(memocache.RegistryOptions{})
	s, err := memocache.NewShared(reg, memocache.Options[int, int]{
		Name:  "price",
		Sizer: func(int, int) int64 { return 8 },
	})
	require.NoError(t, err)
	s.GetOrAdd(1)
	s.GetOrAdd(2)
	// two locals of one type collapse into one series
	s.Local().GetOrAdd(1)
	s.Local().GetOrAdd(2)

	sched, err := memocache.NewScheduler(memocache.SchedulerOptions{Registry: reg, Clock: &memocache.ManualClock{}})
	require.NoError(t, err)

	c := NewCollector("", reg, sched)
	pr := prometheus.NewPedanticRegistry()
	require.NoError(t, pr.Register(c))

	want := `
# HELP memocache_table_entries Live entries per cache table.
# TYPE memocache_table_entries gauge
memocache_table_entries{kind="local",table="price#local"} 2
memocache_table_entries{kind="shared",table="price"} 2
`
	require.NoError(t, testutil.GatherAndCompare(pr, strings.NewReader(want), "memocache_table_entries"))

	sched.Step()
	want = `
# HELP memocache_eviction_steps_total Eviction steps that cleared a table.
# TYPE memocache_eviction_steps_total counter
memocache_eviction_steps_total 1
`
	require.NoError(t, testutil.GatherAndCompare(pr, strings.NewReader(want), "memocache_eviction_steps_total"))
}

func TestHooksCountEvents(t *testing.T) {
	h := NewHooks("test")
	reg := memocache.NewRegistry(memocache.RegistryOptions{Hooks: h})
	a, err := memocache.NewAsync(reg, memocache.AsyncOptions[int, int]{
		Name:      "route",
		Threshold: 1,
		Hooks:     h,
		Compute: func(context.Context, int) (int, error) {
			return 0, errors.New("no path")
		},
	})
	require.NoError(t, err)

	task, ok := a.RequestAsync(context.Background(), 1)
	require.True(t, ok)
	_, err = task.Wait(context.Background())
	require.Error(t, err)

	reg.ClearAll()

	assert.Equal(t, 1.0, testutil.ToFloat64(h.computeFailures.WithLabelValues("route")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.clears.WithLabelValues("route", "all")))

	pr := prometheus.NewPedanticRegistry()
	require.NoError(t, pr.Register(h))
}
