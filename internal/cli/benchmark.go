package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"globesort/internal/bench"
	"globesort/internal/config"
	"globesort/internal/endpoint"
	"globesort/internal/report"
	"globesort/internal/values"
)

// target is the parsed positional arguments shared by every benchmark
// command.
type target struct {
	host   string
	port   int
	values int
}

func parseTarget(args []string) (target, error) {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return target{}, fmt.Errorf("invalid server port %q: must be an integer", args[1])
	}
	n, err := strconv.Atoi(args[2])
	if err != nil {
		return target{}, fmt.Errorf("invalid number of values %q: must be an integer", args[2])
	}
	if n < 0 {
		return target{}, fmt.Errorf("invalid number of values %d: must not be negative", n)
	}
	return target{host: args[0], port: port, values: n}, nil
}

func addBenchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("max-message-size", config.DefaultMaxMessageSize, "largest gRPC message sent or received")
	f.Duration("dial-timeout", endpoint.DefaultDialTimeout, "time allowed for the connection to become ready")
	f.Duration("call-timeout", 0, "deadline for each RPC (0 for none)")
	f.Duration("shutdown-timeout", endpoint.DefaultShutdownTimeout, "time allowed for the connection to close")
	f.Uint64("seed", 0, "random seed for generated values (0 for time-based)")
	f.Bool("verify", false, "check the returned values are the request, sorted")
	f.StringP("output", "o", config.DefaultOutput, "output format (text, json)")
}

// addBatchFlags registers the flags that repeat or fan out a single benchmark.
func addBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("runs", "n", config.DefaultRuns, "sequential runs per connection")
	f.IntP("parallel", "p", config.DefaultParallel, "independent client instances, each with its own connection")
	f.IntP("workers", "w", 0, "instances running at once (0 for all)")
}

// applyFlags overlays the flags the user set onto s.
func applyFlags(cmd *cobra.Command, s *config.Settings) error {
	f := cmd.Flags()

	if f.Changed("max-message-size") {
		v, _ := f.GetString("max-message-size")
		size, err := config.ParseSize(v)
		if err != nil {
			return fmt.Errorf("invalid --max-message-size: %w", err)
		}
		s.MaxMessageSize = size
	}
	if f.Changed("dial-timeout") {
		s.DialTimeout, _ = f.GetDuration("dial-timeout")
	}
	if f.Changed("call-timeout") {
		s.CallTimeout, _ = f.GetDuration("call-timeout")
	}
	if f.Changed("shutdown-timeout") {
		s.ShutdownTimeout, _ = f.GetDuration("shutdown-timeout")
	}
	if f.Changed("seed") {
		s.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("runs") {
		s.Runs, _ = f.GetInt("runs")
	}
	if f.Changed("parallel") {
		s.Parallel, _ = f.GetInt("parallel")
	}
	if f.Changed("workers") {
		s.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("verify") {
		s.Verify, _ = f.GetBool("verify")
	}
	if f.Changed("output") {
		s.Output, _ = f.GetString("output")
	}

	return s.Validate()
}

// sourceFunc gives each instance its own generator, derived from one seed.
func sourceFunc(seed uint64) bench.SourceFunc {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return func(instance int) values.Source {
		return values.NewRandom(seed + uint64(instance))
	}
}

func newRunner(s config.Settings, logger *zap.Logger) *bench.Runner {
	workers := s.Workers
	if workers == 0 {
		workers = s.Parallel
	}
	return bench.NewRunner(bench.RunnerConfig{
		Source:          sourceFunc(s.Seed),
		Verify:          s.Verify,
		Workers:         int64(workers),
		ShutdownTimeout: s.ShutdownTimeout,
		Logger:          logger,
	})
}

func dialer(t target, s config.Settings, logger *zap.Logger) bench.DialFunc {
	return func(ctx context.Context) (bench.Conn, error) {
		return endpoint.Open(ctx, t.host, t.port,
			endpoint.WithMaxMessageSize(s.MaxMessageSize),
			endpoint.WithDialTimeout(s.DialTimeout),
			endpoint.WithCallTimeout(s.CallTimeout),
			endpoint.WithLogger(logger),
		)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}

	s := appInstance.Settings
	if err := applyFlags(cmd, &s); err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := appInstance.Logger
	printer := appInstance.Printer
	runner := newRunner(s, logger)
	textOutput := s.Output == "text"

	var progress bench.ProgressFunc
	if textOutput && s.Runs*s.Parallel > 1 {
		progress = printer.Progress
	}

	var batch *bench.BatchResult
	if s.Parallel > 1 {
		logger.Info("starting parallel benchmark",
			zap.Int("instances", s.Parallel),
			zap.Int("runs", s.Runs),
			zap.Int("values", t.values))

		batch, err = runner.RunParallel(ctx, dialer(t, s, logger), t.values, s.Parallel, s.Runs, progress)
		if err != nil {
			return err
		}
	} else {
		conn, err := dialer(t, s, logger)(ctx)
		if err != nil {
			return err
		}
		defer conn.Close(s.ShutdownTimeout)

		start := time.Now()
		runs, err := runner.RunSequence(ctx, conn, conn.Address(), 0, t.values, s.Runs, progress)
		if err != nil {
			return err
		}
		batch = bench.NewBatch(runs, time.Since(start))
	}

	if !textOutput {
		if len(batch.Runs) == 1 {
			return report.JSON(appInstance.Out, batch.Runs[0])
		}
		return report.JSON(appInstance.Out, batch)
	}

	if len(batch.Runs) == 1 {
		printer.Run(batch.Runs[0])
		return nil
	}
	printer.Summary(batch.Summary, batch.Duration.Round(time.Millisecond).String())
	return nil
}
