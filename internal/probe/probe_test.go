package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	pkgerrors "globesort/pkg/errors"
)

type advancer interface {
	Advance(d time.Duration)
}

type fakePinger struct {
	clock advancer
	delay time.Duration
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	f.clock.Advance(f.delay)
	return f.err
}

func TestPing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pinger := &fakePinger{clock: clock, delay: 12 * time.Millisecond}

	sample, err := NewProber(clock, nil).Ping(context.Background(), pinger)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pinger.calls != 1 {
		t.Errorf("calls = %d, want 1", pinger.calls)
	}
	if sample.Millis() != 12 {
		t.Errorf("rtt = %v ms, want 12", sample.Millis())
	}
	if sample.Elapsed() < 0 {
		t.Error("negative rtt")
	}
}

func TestPingFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	want := &pkgerrors.RPCError{Method: "Ping", Code: "Unavailable", Err: pkgerrors.ErrRemoteCall}
	pinger := &fakePinger{clock: clock, err: want}

	_, err := NewProber(clock, nil).Ping(context.Background(), pinger)
	if !errors.Is(err, pkgerrors.ErrRemoteCall) || !pkgerrors.IsRPC(err) {
		t.Fatalf("err = %v, want RPCError", err)
	}
}
