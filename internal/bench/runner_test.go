package bench

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"globesort/internal/endpoint"
	"globesort/internal/endpoint/endpointtest"
	"globesort/internal/values"
	pkgerrors "globesort/pkg/errors"
)

type advancer interface {
	Advance(d time.Duration)
}

// scriptedRemote is a mocked server that advances a fake clock by fixed
// amounts for each call.
type scriptedRemote struct {
	clock     advancer
	pingDelay time.Duration
	sortDelay time.Duration
	resp      []int32
	sortErr   error
	pings     int
	sorts     int
	sent      []int32
}

func (s *scriptedRemote) Ping(context.Context) error {
	s.pings++
	s.clock.Advance(s.pingDelay)
	return nil
}

func (s *scriptedRemote) SortIntegers(_ context.Context, v []int32) ([]int32, error) {
	s.sorts++
	s.sent = v
	s.clock.Advance(s.sortDelay)
	return s.resp, s.sortErr
}

func fixedSource(v ...int32) SourceFunc {
	return func(int) values.Source { return values.Fixed(v) }
}

func TestRunOnceRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{
		clock:     clock,
		pingDelay: 10 * time.Millisecond,
		sortDelay: 100 * time.Millisecond,
		resp:      []int32{1, 3, 5, 8, 42},
	}
	r := NewRunner(RunnerConfig{Clock: clock, Verify: true})

	run, err := r.RunOnce(context.Background(), remote, "mock", values.Fixed{5, 3, 8, 1}, 4)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if remote.pings != 1 || remote.sorts != 1 {
		t.Errorf("pings=%d sorts=%d, want one of each", remote.pings, remote.sorts)
	}
	if !slices.Equal(remote.sent, []int32{5, 3, 8, 1}) {
		t.Errorf("sent %v", remote.sent)
	}
	if !run.Verified {
		t.Error("run should be verified")
	}

	rep := run.Report
	if rep.ServerSortMs != 42 {
		t.Errorf("ServerSortMs = %d, want 42", rep.ServerSortMs)
	}
	if rep.PingRTTMs != 10 || rep.OneWayLatencyMs != 5 || rep.RPCRTTMs != 100 {
		t.Errorf("report = %+v", rep)
	}
	if math.Abs(rep.ApplicationThroughput-40) > 1e-9 {
		t.Errorf("ApplicationThroughput = %v, want 40", rep.ApplicationThroughput)
	}
	if rep.OneWayNetworkMs != 29 {
		t.Errorf("OneWayNetworkMs = %v, want 29", rep.OneWayNetworkMs)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	newRemote := func(clock advancer) *scriptedRemote {
		return &scriptedRemote{
			clock:     clock,
			pingDelay: 3 * time.Millisecond,
			sortDelay: 17 * time.Millisecond,
			resp:      []int32{1, 3, 5, 8, 6},
		}
	}

	do := func() *Run {
		clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
		r := NewRunner(RunnerConfig{Clock: clock})
		run, err := r.RunOnce(context.Background(), newRemote(clock), "mock", values.Fixed{5, 3, 8, 1}, 4)
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		return run
	}

	a, b := do(), do()
	if a.Report != b.Report {
		t.Errorf("reports differ: %+v vs %+v", a.Report, b.Report)
	}
	if a.ID == b.ID {
		t.Error("runs should carry distinct IDs")
	}
}

func TestRunOnceEmptyResponse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{clock: clock, resp: nil}

	run, err := NewRunner(RunnerConfig{Clock: clock}).RunOnce(context.Background(), remote, "mock", values.Fixed{5, 3}, 2)
	if run != nil {
		t.Fatal("no run should be produced")
	}
	if !pkgerrors.IsProtocol(err) || !errors.Is(err, pkgerrors.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestRunOnceVerifyRejectsUnsorted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{clock: clock, resp: []int32{3, 1, 0}}

	_, err := NewRunner(RunnerConfig{Clock: clock, Verify: true}).RunOnce(context.Background(), remote, "mock", values.Fixed{1, 3}, 2)
	if !errors.Is(err, pkgerrors.ErrNotSorted) {
		t.Fatalf("err = %v, want ErrNotSorted", err)
	}
}

func TestRunOnceFlagsAnomalies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{clock: clock, sortDelay: 5 * time.Millisecond, resp: []int32{1, 50}}

	run, err := NewRunner(RunnerConfig{Clock: clock}).RunOnce(context.Background(), remote, "mock", values.Fixed{1}, 1)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(run.Anomalies) == 0 {
		t.Error("server duration above rtt should be flagged")
	}
}

func TestRunSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{clock: clock, sortDelay: time.Millisecond, resp: []int32{1, 2, 0}}
	r := NewRunner(RunnerConfig{Clock: clock, Source: fixedSource(2, 1)})

	var progress []int
	runs, err := r.RunSequence(context.Background(), remote, "mock", 0, 2, 3, func(run *Run, current, total int) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		progress = append(progress, current)
	})
	if err != nil {
		t.Fatalf("RunSequence: %v", err)
	}
	if len(runs) != 3 || remote.sorts != 3 || remote.pings != 3 {
		t.Errorf("runs=%d sorts=%d pings=%d", len(runs), remote.sorts, remote.pings)
	}
	if !slices.Equal(progress, []int{1, 2, 3}) {
		t.Errorf("progress = %v", progress)
	}
	for i, run := range runs {
		if run.Seq != i {
			t.Errorf("runs[%d].Seq = %d", i, run.Seq)
		}
	}
}

func TestRunSequenceStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := &scriptedRemote{clock: clock, resp: []int32{0}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(RunnerConfig{Clock: clock}).RunSequence(ctx, remote, "mock", 0, 0, 5, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if remote.pings != 0 {
		t.Errorf("pings = %d, want none after cancel", remote.pings)
	}
}

func dialServer(srv *endpointtest.Server, dials *atomic.Int64) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		return endpoint.Open(ctx, srv.Host, srv.Port)
	}
}

func TestRunParallel(t *testing.T) {
	srv := endpointtest.Start(t, endpointtest.Handler{Sort: endpointtest.SortWithDuration(1)})
	var dials atomic.Int64

	r := NewRunner(RunnerConfig{Verify: true, Workers: 2})
	var calls atomic.Int64
	batch, err := r.RunParallel(context.Background(), dialServer(srv, &dials), 50, 3, 2, func(*Run, int, int) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if dials.Load() != 3 {
		t.Errorf("dials = %d, want one per instance", dials.Load())
	}
	if len(batch.Runs) != 6 || batch.Summary.Runs != 6 {
		t.Errorf("runs = %d, summary runs = %d", len(batch.Runs), batch.Summary.Runs)
	}
	if calls.Load() != 6 {
		t.Errorf("progress calls = %d", calls.Load())
	}
	if srv.Pings() != 6 || srv.Sorts() != 6 {
		t.Errorf("server saw %d pings, %d sorts", srv.Pings(), srv.Sorts())
	}
	seen := map[int]int{}
	for _, run := range batch.Runs {
		seen[run.Instance]++
		if !run.Verified || run.Report.Values != 50 {
			t.Errorf("run %+v", run)
		}
	}
	if len(seen) != 3 {
		t.Errorf("instances seen = %v", seen)
	}
}

func TestRunParallelDialFailure(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	dial := func(ctx context.Context) (Conn, error) {
		return endpoint.Open(ctx, "127.0.0.1", 0)
	}

	batch, err := r.RunParallel(context.Background(), dial, 10, 2, 1, nil)
	if batch != nil {
		t.Fatal("no batch should be produced")
	}
	if !pkgerrors.IsConnection(err) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
}

func TestNewBatchOrdersByStart(t *testing.T) {
	t0 := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	late := &Run{StartedAt: t0.Add(time.Second), Seq: 1}
	early := &Run{StartedAt: t0, Seq: 0}
	input := []*Run{late, early}

	batch := NewBatch(input, time.Second)
	if batch.Runs[0] != early || batch.Runs[1] != late {
		t.Errorf("runs not ordered by start time")
	}
	if input[0] != late {
		t.Error("input slice should not be reordered")
	}
	if batch.Summary.Runs != 2 || batch.Duration != time.Second {
		t.Errorf("batch = %+v", batch)
	}
}
