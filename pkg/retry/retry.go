// Package retry wraps an operation with a bounded, fixed-schedule retry
// policy. The schedule is deliberately deterministic (no jitter) so exact
// wait times can be asserted in tests and reasoned about by operators.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/datlabs/r2recon/internal/utils"
)

// Policy controls how many times an operation is retried and how long to
// sleep between attempts. The last schedule entry is reused for any attempt
// past the end of the schedule.
type Policy struct {
	MaxRetries int
	Backoff    []time.Duration

	// sleep is swapped out by tests to record delays instead of waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the production schedule: up to 3 retries at
// 250ms / 1s / 2.5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Backoff:    []time.Duration{250 * time.Millisecond, time.Second, 2500 * time.Millisecond},
	}
}

// Do runs op, retrying transient failures according to the policy. The label
// names the operation in retry logs. Non-transient errors and errors after
// the budget is exhausted are returned as-is.
func Do(ctx context.Context, label string, p Policy, op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !IsTransient(err) {
			return err
		}

		delay := delayFor(p.Backoff, attempt)
		utils.Log.Warnf("%s failed (attempt %d/%d), retrying in %s: %v",
			label, attempt+1, p.MaxRetries, delay, err)
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// transientMarkers are matched against the error text. HTTP status codes are
// embedded in error strings by the callers (see r2list and catalog).
var transientMarkers = []string{
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"connection reset",
	"timeout",
	"timed out",
	"fetch failed",
	"EOF",
}

// IsTransient reports whether the error looks like a temporary network or
// API condition worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func delayFor(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return time.Second
	}
	if attempt >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
