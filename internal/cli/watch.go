package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"globesort/internal/bench"
	"globesort/internal/report"
	"globesort/internal/schedule"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <server_ip> <server_port> <num_values>",
		Short: "Run a benchmark periodically",
		Long: `Run a benchmark on a fixed interval over one connection.

Runs never overlap: a run that outlasts the interval delays the next one.
Stops on Ctrl+C, after --count runs, or on the first failure with --fail-fast.

Examples:
  globesort watch 10.0.0.7 50051 10000 --every 30s
  globesort watch 10.0.0.7 50051 10000 --every 1m --count 60 -o json`,
		Args: cobra.ExactArgs(3),
		RunE: runWatch,
	}

	addBenchFlags(cmd)
	cmd.Flags().Duration("every", 10*time.Second, "interval between runs")
	cmd.Flags().Int("count", 0, "stop after this many runs (0 to run until interrupted)")
	cmd.Flags().Bool("fail-fast", false, "stop on the first failed run")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	t, err := parseTarget(args)
	if err != nil {
		return err
	}

	s := appInstance.Settings
	if err := applyFlags(cmd, &s); err != nil {
		return err
	}
	every, _ := cmd.Flags().GetDuration("every")
	count, _ := cmd.Flags().GetInt("count")
	failFast, _ := cmd.Flags().GetBool("fail-fast")
	if count < 0 {
		return fmt.Errorf("invalid --count %d: must not be negative", count)
	}

	ctx := cmd.Context()
	logger := appInstance.Logger
	printer := appInstance.Printer
	runner := newRunner(s, logger)

	conn, err := dialer(t, s, logger)(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(s.ShutdownTimeout)

	source := sourceFunc(s.Seed)(0)
	start := time.Now()

	var mu sync.Mutex
	var runs []*bench.Run
	task := func(ctx context.Context, seq int) error {
		run, err := runner.RunOnce(ctx, conn, conn.Address(), source, t.values)
		if err != nil {
			return err
		}
		run.Seq = seq - 1

		mu.Lock()
		runs = append(runs, run)
		mu.Unlock()

		if s.Output == "text" {
			printer.Progress(run, seq, count)
			return nil
		}
		return report.JSON(appInstance.Out, run)
	}

	sched, err := schedule.NewScheduler(schedule.Config{
		Interval: every,
		Count:    count,
		FailFast: failFast,
		Logger:   logger,
	}, task)
	if err != nil {
		return err
	}

	logger.Info("watching", zap.String("target", conn.Address()), zap.Duration("every", every))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	waitErr := sched.Wait(ctx)
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}

	mu.Lock()
	defer mu.Unlock()
	if s.Output == "text" && len(runs) > 1 {
		batch := bench.NewBatch(runs, time.Since(start))
		printer.Summary(batch.Summary, batch.Duration.Round(time.Millisecond).String())
	}
	if failures := sched.Failures(); failures > 0 {
		return fmt.Errorf("%d of %d runs failed", failures, sched.Runs())
	}
	return nil
}
