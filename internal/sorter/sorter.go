// Package sorter executes the single SortIntegers round trip and decodes
// the server-duration sentinel carried in the response.
package sorter

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"globesort/internal/timing"
	pkgerrors "globesort/pkg/errors"
)

const method = "SortIntegers"

// Sorter is the blocking sort call the executor issues.
type Sorter interface {
	SortIntegers(ctx context.Context, values []int32) ([]int32, error)
}

// Result is the outcome of one sort round trip.
type Result struct {
	// Sorted excludes the sentinel.
	Sorted           []int32
	ServerDurationMs int32
	Sample           timing.Sample
}

// Executor performs exactly one SortIntegers call per invocation. It never
// chunks, retries or pipelines the request.
type Executor struct {
	clock  timing.Clock
	logger *zap.Logger
}

// NewExecutor creates an Executor. A nil clock uses the system clock.
func NewExecutor(clock timing.Clock, logger *zap.Logger) *Executor {
	if clock == nil {
		clock = timing.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{clock: clock, logger: logger}
}

// SortRemotely sends values and splits the response into the sorted values
// and the server-reported duration. Transport failures are returned as
// produced by the sorter; a response without a sentinel is a
// *errors.ProtocolError.
func (e *Executor) SortRemotely(ctx context.Context, sorter Sorter, values []int32) (*Result, error) {
	var resp []int32
	sample, err := timing.Measure(e.clock, func() error {
		var callErr error
		resp, callErr = sorter.SortIntegers(ctx, values)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	sorted, durationMs, err := SplitSortedAndDuration(resp)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("sort",
		zap.Int("values", len(values)),
		zap.Float64("rtt_ms", sample.Millis()),
		zap.Int32("server_ms", durationMs))

	return &Result{Sorted: sorted, ServerDurationMs: durationMs, Sample: sample}, nil
}

// SplitSortedAndDuration separates a SortIntegers response into the sorted
// values and the trailing server-duration sentinel in milliseconds.
func SplitSortedAndDuration(resp []int32) ([]int32, int32, error) {
	if len(resp) == 0 {
		return nil, 0, &pkgerrors.ProtocolError{Method: method, Err: pkgerrors.ErrEmptyResponse}
	}
	last := len(resp) - 1
	return resp[:last:last], resp[last], nil
}

// Verify checks that a decoded response holds the request's values in
// non-decreasing order.
func Verify(request []int32, r *Result) error {
	if len(r.Sorted) != len(request) {
		return &pkgerrors.ProtocolError{
			Method: method,
			Err: fmt.Errorf("%w: sent %d values, received %d",
				pkgerrors.ErrProtocolViolation, len(request), len(r.Sorted)),
		}
	}
	if !slices.IsSorted(r.Sorted) {
		return &pkgerrors.ProtocolError{Method: method, Err: pkgerrors.ErrNotSorted}
	}
	if !slices.Equal(r.Sorted, slices.Sorted(slices.Values(request))) {
		return &pkgerrors.ProtocolError{
			Method: method,
			Err:    fmt.Errorf("%w: response values differ from the request", pkgerrors.ErrProtocolViolation),
		}
	}
	return nil
}
