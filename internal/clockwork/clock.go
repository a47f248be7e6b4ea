// Package clockwork provides the engine's real Clock capability.
package clockwork

import (
	"context"
	"time"
)

// Real is the wall clock. Sleep returns early with the context error on
// cancellation so a cancelled run does not hold its goroutine.
type Real struct{}

func New() *Real {
	return &Real{}
}

func (Real) NowUTC() time.Time {
	return time.Now().UTC()
}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
