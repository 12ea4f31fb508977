// Package retry provides exponential backoff retry logic with full jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/url"
	"slices"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the base unit of the backoff window.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff window.
	MaxBackoff time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
}

// DefaultConfig returns the upload retry budget: ten retries, with the
// window for retry n being 2^n seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     1024 * time.Second,
		Multiplier:     2.0,
	}
}

// Window returns the upper bound of the sleep before retry number n
// (1-based): InitialBackoff * Multiplier^n, capped at MaxBackoff.
func (c Config) Window(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	w := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(n))
	if c.MaxBackoff > 0 && w > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	if w > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(w)
}

// FullJitter returns a duration sampled uniformly from [0, window).
// rnd must return values in [0, 1); nil uses math/rand.
func FullJitter(window time.Duration, rnd func() float64) time.Duration {
	if window <= 0 {
		return 0
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return time.Duration(rnd() * float64(window))
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// DefaultStatusCodes are the HTTP statuses retried by default.
var DefaultStatusCodes = []int{500, 502, 503, 504}

// TransportError marks a low-level I/O failure talking to a remote endpoint
// (connection reset, truncated body, malformed response).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusClassifier returns a classifier that retries googleapi errors whose
// status is in codes, and transport-level connectivity failures.
// Context cancellation is never retried.
func StatusClassifier(codes []int) ErrorClassifier {
	return func(err error) bool {
		if err == nil {
			return false
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return slices.Contains(codes, apiErr.Code)
		}

		return IsTransport(err)
	}
}

// IsTransport reports whether err is a connectivity failure rather than a
// response from the remote end.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Do executes fn with retry logic, using the provided classifier to determine
// if errors are retryable. The sleep before retry n is drawn from
// [0, cfg.Window(n)).
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = StatusClassifier(DefaultStatusCodes)
	}

	retries := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !classifier(err) {
			return err
		}

		retries++
		if retries > cfg.MaxRetries {
			return &RetryableError{Err: err, Retries: retries - 1}
		}

		if err := Sleep(ctx, FullJitter(cfg.Window(retries), nil)); err != nil {
			return err
		}
	}
}

// RetryableError wraps the last error seen once the retry budget is spent.
type RetryableError struct {
	Err     error
	Retries int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
