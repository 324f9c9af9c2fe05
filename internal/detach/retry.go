package detach

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// Retry bounds the attempts made to spawn the intermediate process when the
// system is temporarily out of processes or memory.
type Retry struct {
	Attempts int           // total attempts, at least 1
	Delay    time.Duration // before the second attempt, doubled after each
}

// DefaultRetry is used when a Detacher has no policy
var DefaultRetry = Retry{Attempts: 3, Delay: 50 * time.Millisecond}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.EINTR)
}

// do runs fn until it succeeds, fails permanently, the attempts run out or
// ctx is done.
func (r Retry) do(ctx context.Context, fn func() error) error {
	attempts := max(r.Attempts, 1)
	delay := r.Delay

	var err error
	for i := range attempts {
		if i > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
			delay *= 2
		}
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}
