// Package retry provides a bounded retry-with-backoff policy for transient
// remote store failures. Permanent failures (missing paths, bad credentials,
// quota refusals) are never retried.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dropblog/dropblog/shared/dropbox"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultPolicy retries transient failures twice with doubling backoff.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// spent. The backoff sleep is context-aware.
func Do(ctx context.Context, policy Policy, op string, fn func(ctx context.Context) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := policy.InitialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= maxAttempts || !IsTransient(err) {
			return err
		}

		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("transient failure, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

// IsTransient reports whether an error is worth another attempt: transport
// failures and server-side errors are; everything the remote store taxonomy
// classifies (not found, auth, quota, conflict) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, dropbox.ErrNotFound) || errors.Is(err, dropbox.ErrAuth) ||
		errors.Is(err, dropbox.ErrQuota) || errors.Is(err, dropbox.ErrConflict) {
		return false
	}

	var apiErr *dropbox.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
