// Package scheduler drives the producer at a fixed rate.
//
// Rate keeps an absolute target instant and advances it by one period per
// iteration, so time spent inside the tick function does not accumulate as
// drift.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/billm/imulink/internal/logger"
	"github.com/billm/imulink/pkg/types"
)

// TickFunc is invoked once per period. A non-nil error ends Run.
type TickFunc func(ctx context.Context) error

// Config contains rate configuration
type Config struct {
	FrequencyHz int64
	// MaxIterations stops Run after that many ticks. Zero means unbounded.
	MaxIterations int
	// Clock defaults to RealClock
	Clock Clock
}

// Rate runs a function at a fixed frequency
type Rate struct {
	period  time.Duration
	max     int
	clock   Clock
	logger  *logger.Logger
	ticks   atomic.Uint64
	overrun atomic.Uint64
}

// PeriodFromFrequency converts a frequency to a whole-millisecond period.
// The division truncates, so 3 Hz gives 333ms. Frequencies that are not
// positive, or high enough to truncate to a zero period, are CONFIG errors.
func PeriodFromFrequency(hz int64) (time.Duration, error) {
	if hz <= 0 {
		return 0, types.NewError(types.ErrCodeConfig, "frequency-hz must be greater than 0")
	}
	ms := 1000 / hz
	if ms == 0 {
		return 0, types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("frequency-hz %d gives a period below 1ms", hz))
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// New creates a new rate scheduler with the specified configuration
func New(cfg Config, log *logger.Logger) (*Rate, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}

	period, err := PeriodFromFrequency(cfg.FrequencyHz)
	if err != nil {
		return nil, err
	}
	if cfg.MaxIterations < 0 {
		return nil, types.NewError(types.ErrCodeConfig, "max iterations cannot be negative")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	r := &Rate{
		period: period,
		max:    cfg.MaxIterations,
		clock:  clock,
		logger: log.With("component", "scheduler"),
	}

	r.logger.Debug("Scheduler initialized",
		"frequency_hz", cfg.FrequencyHz,
		"period", period.String(),
		"max_iterations", cfg.MaxIterations)

	return r, nil
}

// Period returns the interval between ticks
func (r *Rate) Period() time.Duration {
	return r.period
}

// Run calls fn once per period until fn fails, ctx is done or
// MaxIterations ticks have run. Each iteration advances the target by one
// period, calls fn, then sleeps until the target. If fn overruns the
// period the next tick starts immediately.
//
// Run returns fn's error, ctx.Err(), or nil when the iteration limit is hit.
func (r *Rate) Run(ctx context.Context, fn TickFunc) error {
	target := r.clock.Now()

	for i := 0; r.max == 0 || i < r.max; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		target = target.Add(r.period)

		if err := fn(ctx); err != nil {
			return err
		}
		r.ticks.Add(1)

		if r.max != 0 && i == r.max-1 {
			break
		}

		if now := r.clock.Now(); now.After(target) {
			r.overrun.Add(1)
			r.logger.Debug("Tick overran its period", "late_by", now.Sub(target).String())
		}

		if err := r.clock.SleepUntil(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns scheduler statistics
func (r *Rate) Stats() Stats {
	return Stats{
		Period:   r.period,
		Ticks:    r.ticks.Load(),
		Overruns: r.overrun.Load(),
	}
}

// Stats represents scheduler statistics
type Stats struct {
	Period   time.Duration `json:"period"`
	Ticks    uint64        `json:"ticks"`
	Overruns uint64        `json:"overruns"`
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Period: %s, Ticks: %d, Overruns: %d}", s.Period, s.Ticks, s.Overruns)
}
