// Package probe measures the liveness round trip to a sort server.
package probe

import (
	"context"

	"go.uber.org/zap"

	"globesort/internal/timing"
)

// Pinger is the empty-payload call the probe issues.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober times a single Ping.
type Prober struct {
	clock  timing.Clock
	logger *zap.Logger
}

// NewProber creates a Prober. A nil clock uses the system clock.
func NewProber(clock timing.Clock, logger *zap.Logger) *Prober {
	if clock == nil {
		clock = timing.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{clock: clock, logger: logger}
}

// Ping sends one empty request and returns the interval spanning it. Errors
// from the pinger are returned unchanged.
func (p *Prober) Ping(ctx context.Context, pinger Pinger) (timing.Sample, error) {
	sample, err := timing.Measure(p.clock, func() error {
		return pinger.Ping(ctx)
	})
	if err != nil {
		p.logger.Debug("ping failed", zap.Error(err))
		return timing.Sample{}, err
	}
	p.logger.Debug("ping", zap.Float64("rtt_ms", sample.Millis()))
	return sample, nil
}
