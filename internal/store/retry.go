package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/kozaktomas/photo-batcher/internal/constants"
)

// RetryPolicy retries an operation with bounded exponential backoff. It exists
// because SQLite is effectively single-writer: a status poll and a worker
// mutation can collide and fail with "database is locked" even though both are
// perfectly valid. The policy is an explicit object rather than a decorator so
// the control flow stays visible at every call site that needs it.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Backoff holds the delay before each retry. Backoff[0] precedes the
	// second attempt.
	Backoff []time.Duration

	// Retryable reports whether an error is worth retrying.
	Retryable func(error) bool

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// DefaultRetryPolicy returns the policy used for every database operation:
// up to five retries with 500ms, 1s, 2s, 4s, 8s delays, retrying only lock
// contention.
func DefaultRetryPolicy() RetryPolicy {
	backoff := make([]time.Duration, constants.WriteMaxAttempts-1)
	d := constants.WriteBackoffBase
	for i := range backoff {
		backoff[i] = d
		d *= 2
	}
	return RetryPolicy{
		MaxAttempts: constants.WriteMaxAttempts,
		Backoff:     backoff,
		Retryable:   IsLockedError,
		sleep:       time.Sleep,
	}
}

// Do runs op, retrying per the policy. Non-retryable errors are returned
// immediately. When attempts are exhausted the last error is returned wrapped,
// halting only the caller's unit of work.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if i := attempt - 1; i < len(p.Backoff) {
			sleep(p.Backoff[i])
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, err)
}

// IsLockedError reports whether err is SQLite lock contention.
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	// Errors wrapped with fmt.Errorf lose the concrete type once formatted
	// through driver layers; fall back to the message.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
