// Package retrier wraps retry-go with the bounded exponential backoff
// every worker stage uses around its object-store calls (and, in the
// synthesizer, its text-to-speech calls). Broker publishes are not
// retried through it.
package retrier

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Do runs fn up to attempts times with exponential backoff starting at
// backoff, stopping early on success or once ctx is done.
func Do(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
