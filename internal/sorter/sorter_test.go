package sorter

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	pkgerrors "globesort/pkg/errors"
)

type advancer interface {
	Advance(d time.Duration)
}

type fakeSorter struct {
	clock advancer
	delay time.Duration
	resp  []int32
	err   error
	calls int
	got   []int32
}

func (f *fakeSorter) SortIntegers(_ context.Context, values []int32) ([]int32, error) {
	f.calls++
	f.got = values
	f.clock.Advance(f.delay)
	return f.resp, f.err
}

func TestSplitSortedAndDuration(t *testing.T) {
	tests := []struct {
		name     string
		resp     []int32
		sorted   []int32
		duration int32
	}{
		{"values and sentinel", []int32{1, 3, 5, 8, 42}, []int32{1, 3, 5, 8}, 42},
		{"sentinel only", []int32{7}, []int32{}, 7},
		{"zero duration", []int32{-4, 0}, []int32{-4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sorted, duration, err := SplitSortedAndDuration(tt.resp)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(sorted, tt.sorted) {
				t.Errorf("sorted = %v, want %v", sorted, tt.sorted)
			}
			if duration != tt.duration {
				t.Errorf("duration = %d, want %d", duration, tt.duration)
			}
		})
	}
}

func TestSplitEmptyResponse(t *testing.T) {
	_, _, err := SplitSortedAndDuration(nil)
	if !pkgerrors.IsProtocol(err) || !errors.Is(err, pkgerrors.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ProtocolError wrapping ErrEmptyResponse", err)
	}
	if pkgerrors.IsRPC(err) {
		t.Error("empty response reported as RPC error")
	}
}

func TestSplitDoesNotAliasSentinel(t *testing.T) {
	resp := []int32{1, 2, 99}
	sorted, _, _ := SplitSortedAndDuration(resp)
	sorted = append(sorted, 5)
	if resp[2] != 99 {
		t.Errorf("append to sorted overwrote the sentinel: %v", resp)
	}
}

func TestSortRemotely(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fake := &fakeSorter{clock: clock, delay: 120 * time.Millisecond, resp: []int32{1, 3, 5, 8, 42}}
	request := []int32{5, 3, 8, 1}

	r, err := NewExecutor(clock, nil).SortRemotely(context.Background(), fake, request)
	if err != nil {
		t.Fatalf("SortRemotely: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want exactly one round trip", fake.calls)
	}
	if !slices.Equal(fake.got, request) {
		t.Errorf("request sent = %v", fake.got)
	}
	if r.ServerDurationMs != 42 {
		t.Errorf("ServerDurationMs = %d, want 42", r.ServerDurationMs)
	}
	if !slices.Equal(r.Sorted, []int32{1, 3, 5, 8}) {
		t.Errorf("Sorted = %v", r.Sorted)
	}
	if r.Sample.Millis() != 120 {
		t.Errorf("rpc rtt = %v ms, want 120", r.Sample.Millis())
	}
	if err := Verify(request, r); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestSortRemotelyEmptyResponse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fake := &fakeSorter{clock: clock, resp: []int32{}}

	r, err := NewExecutor(clock, nil).SortRemotely(context.Background(), fake, []int32{5, 3})
	if r != nil {
		t.Error("expected no result")
	}
	if !pkgerrors.IsProtocol(err) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestSortRemotelyCallFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	want := &pkgerrors.RPCError{Method: "SortIntegers", Code: "Internal", Err: pkgerrors.ErrRemoteCall}
	fake := &fakeSorter{clock: clock, err: want}

	_, err := NewExecutor(clock, nil).SortRemotely(context.Background(), fake, []int32{1})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		request []int32
		sorted  []int32
		want    error
	}{
		{"ok", []int32{3, 1, 2}, []int32{1, 2, 3}, nil},
		{"duplicates", []int32{2, 2, 1}, []int32{1, 2, 2}, nil},
		{"unsorted", []int32{3, 1, 2}, []int32{1, 3, 2}, pkgerrors.ErrNotSorted},
		{"missing value", []int32{3, 1, 2}, []int32{1, 2}, pkgerrors.ErrProtocolViolation},
		{"wrong values", []int32{5, 3, 8, 1}, []int32{0, 0, 0, 0}, pkgerrors.ErrProtocolViolation},
		{"duplicate replaces value", []int32{2, 2, 1}, []int32{1, 1, 2}, pkgerrors.ErrProtocolViolation},
		{"empty", nil, []int32{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.request, &Result{Sorted: tt.sorted})
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) || !pkgerrors.IsProtocol(err) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
