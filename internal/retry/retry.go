// Package retry provides bounded retries with exponential backoff for
// transient failures against external vault, store, and notification calls.
package retry

import (
	"context"
	"time"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
)

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// BaseDelay is the delay before the first retry. Each subsequent retry
	// doubles it, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy applied to vault and notification calls.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

// Do runs fn, retrying transient failures per the policy. Non-retryable
// errors and context cancellation return immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	delay := p.BaseDelay
	var err error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == p.Attempts || !vwerrors.IsRetryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}
