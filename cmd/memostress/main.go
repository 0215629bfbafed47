// Command memostress drives memocache with a synthetic workload: worker
// goroutines read through their own local tables and a shared async route
// cache while entities are destroyed, so the eviction scheduler keeps the
// registry bounded. It prints the utilization report at the end.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/memocache"
	memozap "github.com/unkn0wn-root/memocache/log/zap"
	"github.com/unkn0wn-root/memocache/metrics/prom"
	"github.com/unkn0wn-root/memocache/sizer"
	"github.com/unkn0wn-root/memocache/version"
)

type config struct {
	workers      int
	keys         int
	ops          int
	threshold    int
	window       time.Duration
	destroyEvery int
	metricsAddr  string
	verbose      bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("memostress", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var cfg config
	fs.IntVarP(&cfg.workers, "workers", "w", 4, "worker goroutines")
	fs.IntVarP(&cfg.keys, "keys", "k", 1000, "distinct keys per cache type")
	fs.IntVarP(&cfg.ops, "ops", "n", 100_000, "operations per worker")
	fs.IntVar(&cfg.threshold, "threshold", memocache.DefaultThreshold, "async debounce threshold")
	fs.DurationVar(&cfg.window, "window", time.Second, "eviction sweep window")
	fs.IntVar(&cfg.destroyEvery, "destroy-every", 50, "destroy one entity every N operations")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if cfg.workers <= 0 || cfg.keys <= 0 || cfg.ops < 0 || cfg.destroyEvery <= 0 {
		fmt.Fprintln(errOut, "error: workers, keys and destroy-every must be positive")
		return 2
	}

	zl := newZap(cfg.verbose, errOut)
	defer func() { _ = zl.Sync() }()

	if err := stress(cfg, memozap.ZapLogger{L: zl}, out); err != nil {
		zl.Error("stress failed", zap.Error(err))
		return 1
	}
	return 0
}

func newZap(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

type route struct {
	From, To int
	Hops     []int
}

func stress(cfg config, log memocache.Logger, out io.Writer) error {
	hooks := prom.NewHooks("")
	reg := memocache.NewRegistry(memocache.RegistryOptions{Logger: log, Hooks: hooks})

	clk := memocache.NewWallClock()
	sched, err := memocache.NewScheduler(memocache.SchedulerOptions{
		Registry: reg,
		Clock:    clk,
		Window:   cfg.window.Milliseconds(),
		Logger:   log,
		Hooks:    hooks,
	})
	if err != nil {
		return err
	}

	if cfg.metricsAddr != "" {
		pr := prometheus.NewRegistry()
		pr.MustRegister(prom.NewCollector("", reg, sched), hooks)
		srv := &http.Server{Addr: cfg.metricsAddr, Handler: promhttp.HandlerFor(pr, promhttp.HandlerOpts{}), ReadHeaderTimeout: time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", memocache.Fields{"err": err})
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	// bumped on every destruction; cached routes depend on it
	world := &version.Counter{}

	prices, err := memocache.NewShared(reg, memocache.Options[memocache.Key1[int], float64]{
		Name:   "price",
		Init:   func(k memocache.Key1[int]) float64 { return float64(k.A) * 1.5 },
		Logger: log,
	})
	if err != nil {
		return err
	}

	routes, err := memocache.NewAsync(reg, memocache.AsyncOptions[memocache.Key2[int, int], route]{
		Name:      "route",
		Threshold: cfg.threshold,
		Deadline:  memocache.DeadlinePolicy{Clock: clk, Interval: cfg.window.Milliseconds(), Jitter: cfg.window.Milliseconds() / 4},
		Depends:   world,
		Logger:    log,
		Hooks:     hooks,
		Compute: func(_ context.Context, k memocache.Key2[int, int]) (route, error) {
			if k.A == k.B {
				return route{}, fmt.Errorf("no route from %d to itself", k.A)
			}
			return route{From: k.A, To: k.B, Hops: []int{k.A, (k.A + k.B) / 2, k.B}}, nil
		},
	})
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for w := range cfg.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker(w, cfg, reg, prices, routes, world, sched); err != nil {
				log.Error("worker stopped", memocache.Fields{"worker": w, "err": err})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	st := sched.Stats()
	fmt.Fprint(out, reg.Report())
	fmt.Fprintf(out, "\nscheduler: cycles=%d steps=%d evicted=%d interval=%dms\n",
		st.Cycles, st.Steps, st.Cleared, st.StepInterval)
	fmt.Fprintf(out, "async: launches=%d\n", routes.Launches())
	return nil
}

type stats struct {
	Hits, Misses int
}

func worker(id int, cfg config, reg *memocache.Registry, prices *memocache.Shared[memocache.Key1[int], float64],
	routes *memocache.Async[memocache.Key2[int, int], route], world *version.Counter, sched *memocache.Scheduler) error {
	rng := rand.New(rand.NewPCG(uint64(id), 42))
	local := prices.Local()
	counts, err := memocache.NewTable(reg, memocache.Options[int, stats]{
		Name:  fmt.Sprintf("worker-%d-stats", id),
		Sizer: sizer.Func[int, stats](sizer.Msgpack[stats]{}),
	})
	if err != nil {
		return fmt.Errorf("worker %d stats table: %w", id, err)
	}
	ctx := context.Background()

	for op := range cfg.ops {
		k := rng.IntN(cfg.keys)
		local.GetOrAdd(memocache.K1(k))

		s := counts.GetOrAdd(k)
		if _, ok := routes.TryGet(ctx, memocache.K2(k, rng.IntN(cfg.keys))); ok {
			s.Hits++
		} else {
			s.Misses++
		}
		counts.Set(k, s)

		if op%cfg.destroyEvery == 0 {
			world.Bump()
			sched.NotifyDestroyed()
		}
	}
	return nil
}
