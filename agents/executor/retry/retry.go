/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs an operation a bounded number of times, sleeping between
// attempts according to how the last failure was classified.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// Class describes how a failed attempt should be retried.
type Class int

const (
	// Transient failures are retried after the flat backoff.
	Transient Class = iota
	// RateLimited failures are retried after BaseBackoff * 2^attempt.
	RateLimited
	// Permanent failures stop the loop immediately.
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classifier maps an error to its retry Class.
type Classifier func(error) Class

// RetryConfig configures retry behavior for model API calls.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first (default: 3).
	MaxAttempts int
	// BaseBackoff is multiplied by 2^attempt after a rate limit (default: 1s).
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff (default: 60s).
	MaxBackoff time.Duration
	// FlatBackoff is the delay after any other retryable failure (default: 1s).
	FlatBackoff time.Duration
	// MaxJitter is the maximum random jitter added to each backoff (default: 0).
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.FlatBackoff < 0 {
		return errors.New("flat backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultRetryConfig returns three attempts with 2^attempt second backoff on
// rate limits and a one second pause otherwise.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		FlatBackoff: 1 * time.Second,
	}
}

// Backoff returns the delay before the attempt following attempt (0-based).
func (c RetryConfig) Backoff(class Class, attempt int) time.Duration {
	var d time.Duration
	switch class {
	case RateLimited:
		d = c.BaseBackoff << attempt
		if c.MaxBackoff > 0 && (d > c.MaxBackoff || d < 0) {
			d = c.MaxBackoff
		}
	default:
		d = c.FlatBackoff
	}
	if c.MaxJitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// Do calls fn up to cfg.MaxAttempts times. fn receives the 0-based attempt
// number. The error from the final attempt is returned wrapped with the
// operation name; context cancellation and Permanent failures return at once.
func Do[T any](ctx context.Context, cfg RetryConfig, operation string, classify Classifier, fn func(attempt int) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result, lastErr = fn(attempt)
		if lastErr == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		class := classify(lastErr)
		if class == Permanent {
			return result, fmt.Errorf("%s failed: %w", operation, lastErr)
		}
		if attempt == attempts-1 {
			break
		}

		backoff := cfg.Backoff(class, attempt)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_attempts", attempts).
			With("class", class.String()).
			With("backoff", backoff).
			With("error", lastErr.Error()).
			Warn("Attempt failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return result, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
