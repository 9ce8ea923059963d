// Package bench runs the measurement protocol: a liveness probe followed by
// one sort request, reduced to a metrics report.
package bench

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"globesort/internal/endpoint"
	"globesort/internal/metrics"
	"globesort/internal/probe"
	"globesort/internal/sorter"
	"globesort/internal/timing"
	"globesort/internal/values"
)

// Run is the outcome of one complete probe + sort exchange.
type Run struct {
	ID        uuid.UUID      `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	Target    string         `json:"target"`
	Instance  int            `json:"instance"`
	Seq       int            `json:"seq"`
	Report    metrics.Report `json:"report"`
	Anomalies []string       `json:"anomalies,omitempty"`
	Verified  bool           `json:"verified"`
}

// BatchResult holds the runs of every instance of a parallel benchmark.
type BatchResult struct {
	Runs     []*Run          `json:"runs"`
	Summary  metrics.Summary `json:"summary"`
	Duration time.Duration   `json:"duration"`
}

// Conn is an open endpoint owned by one instance.
type Conn interface {
	endpoint.Caller
	Address() string
	Close(timeout time.Duration)
}

// DialFunc opens a new connection for one instance.
type DialFunc func(ctx context.Context) (Conn, error)

// ProgressFunc is called each time a run completes.
type ProgressFunc func(run *Run, current, total int)

// SourceFunc returns the value source for an instance. Sources are not
// shared between instances.
type SourceFunc func(instance int) values.Source

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	Clock           timing.Clock
	Source          SourceFunc
	Verify          bool
	Workers         int64
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Runner orchestrates benchmark runs.
type Runner struct {
	config   RunnerConfig
	prober   *probe.Prober
	executor *sorter.Executor
}

// NewRunner creates a new Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timing.RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Source == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Source = func(instance int) values.Source {
			return values.NewRandom(seed + uint64(instance))
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = endpoint.DefaultShutdownTimeout
	}
	return &Runner{
		config:   cfg,
		prober:   probe.NewProber(cfg.Clock, cfg.Logger),
		executor: sorter.NewExecutor(cfg.Clock, cfg.Logger),
	}
}

// RunOnce probes the server, sorts n values from source and computes the
// report. Any failure aborts the run; no partial Run is returned.
func (r *Runner) RunOnce(ctx context.Context, caller endpoint.Caller, target string, source values.Source, n int) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		StartedAt: r.config.Clock.Now(),
		Target:    target,
	}
	log := r.config.Logger.With(zap.String("run", run.ID.String()), zap.String("target", target))

	log.Debug("pinging")
	pingSample, err := r.prober.Ping(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("ping %s: %w", target, err)
	}

	request := source.Values(n)
	log.Debug("requesting sort", zap.Int("values", len(request)))
	result, err := r.executor.SortRemotely(ctx, caller, request)
	if err != nil {
		return nil, fmt.Errorf("sort on %s: %w", target, err)
	}

	if r.config.Verify {
		if err := sorter.Verify(request, result); err != nil {
			return nil, fmt.Errorf("verify %s: %w", target, err)
		}
		run.Verified = true
	}

	run.Report = metrics.Compute(pingSample, result.Sample, result.ServerDurationMs, len(request))
	run.Anomalies = run.Report.Anomalies()
	for _, a := range run.Anomalies {
		log.Warn("measurement anomaly", zap.String("detail", a))
	}
	return run, nil
}

// RunSequence performs runs sequential exchanges on one connection. The
// first failure aborts the sequence.
func (r *Runner) RunSequence(ctx context.Context, caller endpoint.Caller, target string, instance, n, runs int, progress ProgressFunc) ([]*Run, error) {
	source := r.config.Source(instance)
	out := make([]*Run, 0, runs)
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := r.RunOnce(ctx, caller, target, source, n)
		if err != nil {
			return nil, err
		}
		run.Instance = instance
		run.Seq = i
		out = append(out, run)
		if progress != nil {
			progress(run, i+1, runs)
		}
	}
	return out, nil
}

// RunParallel starts instances independent clients, each with its own
// connection and each internally sequential. At most Workers instances run
// at once. The first failure cancels the remaining instances.
func (r *Runner) RunParallel(ctx context.Context, dial DialFunc, n, instances, runs int, progress ProgressFunc) (*BatchResult, error) {
	start := time.Now()

	results := make([][]*Run, instances)
	total := instances * runs
	var mu sync.Mutex
	var completed int

	sem := semaphore.NewWeighted(r.config.Workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < instances; i++ {
		idx := i
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			conn, err := dial(gctx)
			if err != nil {
				return fmt.Errorf("instance %d: %w", idx, err)
			}
			defer conn.Close(r.config.ShutdownTimeout)

			report := func(run *Run, _, _ int) {
				mu.Lock()
				defer mu.Unlock()
				completed++
				if progress != nil {
					progress(run, completed, total)
				}
			}

			runsOut, err := r.RunSequence(gctx, conn, conn.Address(), idx, n, runs, report)
			if err != nil {
				return fmt.Errorf("instance %d: %w", idx, err)
			}
			results[idx] = runsOut
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*Run
	for _, rs := range results {
		all = append(all, rs...)
	}
	return NewBatch(all, time.Since(start)), nil
}

// NewBatch orders runs by start time and summarizes them.
func NewBatch(runs []*Run, duration time.Duration) *BatchResult {
	batch := &BatchResult{Runs: make([]*Run, len(runs)), Duration: duration}
	copy(batch.Runs, runs)
	sort.SliceStable(batch.Runs, func(i, j int) bool {
		return batch.Runs[i].StartedAt.Before(batch.Runs[j].StartedAt)
	})

	reports := make([]metrics.Report, 0, len(runs))
	for _, run := range batch.Runs {
		reports = append(reports, run.Report)
	}
	batch.Summary = metrics.Summarize(reports)
	return batch
}
