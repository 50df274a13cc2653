package retry

import (
	"context"
	"time"
)

// Sleeper abstracts blocking delays so pacing and backoff can be exercised
// in tests without real waiting.
type Sleeper interface {
	// Sleep blocks for the given duration or until the context is cancelled,
	// in which case the context error is returned.
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper is the production Sleeper backed by a timer.
type realSleeper struct{}

// NewSleeper returns the production Sleeper.
func NewSleeper() Sleeper {
	return &realSleeper{}
}

func (s *realSleeper) Sleep(ctx context.Context, d time.Duration) error {
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

var _ Sleeper = (*realSleeper)(nil)
