package scheduler

import (
	"context"
	"time"
)

// Clock is the time source used by Rate. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	// SleepUntil blocks until t or until ctx is done, returning ctx.Err()
	// in the latter case. A t in the past returns immediately.
	SleepUntil(ctx context.Context, t time.Time) error
}

type realClock struct{}

// RealClock returns a Clock backed by the monotonic system clock
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
