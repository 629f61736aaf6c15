package export

import (
	"context"
	"time"
)

var (
	// InitialRetryWaitMillis is the wait before the first retry of a camera's render.
	// public for tests.
	InitialRetryWaitMillis = 200
	// RetryExponentialFactor is the factor by which the wait grows with each further retry.
	// public for tests.
	RetryExponentialFactor = 2
)

const maxRetryInterval = 30 * time.Second

// nextRetryWait returns the wait following lastWait, starting from InitialRetryWaitMillis when
// lastWait is zero.
func nextRetryWait(lastWait time.Duration) time.Duration {
	if lastWait == 0 {
		return time.Millisecond * time.Duration(InitialRetryWaitMillis)
	}
	nextWait := lastWait * time.Duration(RetryExponentialFactor)
	if nextWait > maxRetryInterval {
		return maxRetryInterval
	}
	return nextWait
}

// sleep waits d on the exporter's clock. It returns early with the context's error.
func (e *Exporter) sleep(ctx context.Context, d time.Duration) error {
	timer := e.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
