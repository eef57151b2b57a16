// Package lock provides mutual exclusion for migration runs across
// processes.
package lock

import (
	"context"
	"errors"
	"time"

	"code.cloudfoundry.org/clock"
)

var (
	// ErrHeld is returned when the lock is still held by another owner
	// after the configured wait.
	ErrHeld = errors.New("lock is held by another owner")

	// ErrLost is the cause of a held context whose lock expired or was
	// taken over while it was still in use.
	ErrLost = errors.New("lock was lost while held")
)

// Locker obtains the exclusive migration lock for key.
//
// The returned held context is derived from ctx and is done once release
// is called or the lock is lost; work that needs the lock should run
// under it. The release function must be called; calling it more than
// once is harmless.
type Locker interface {
	Acquire(ctx context.Context, key string) (held context.Context, release func(), err error)
}

// DefaultRetryInterval is how often Poll retries a contended lock.
const DefaultRetryInterval = 100 * time.Millisecond

// Poll calls try until it reports success, fails, or wait elapses. A
// zero wait means a single attempt. Running out of time yields ErrHeld.
func Poll(ctx context.Context, clk clock.Clock, wait, interval time.Duration, try func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	deadline := clk.Now().Add(wait)
	for {
		acquired, err := try(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if !clk.Now().Before(deadline) {
			return ErrHeld
		}

		timer := clk.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}
