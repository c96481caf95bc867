package fetcher

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch signals that a requested page has no entities at all. It is a
// normal termination condition for the batch driver, not a failure.
var ErrEmptyBatch = errors.New("no entities for requested page")

// AuthError represents a login failure or missing credential material.
// It aborts the run; there is nothing to retry.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps a network or HTTP-layer failure. The core does not
// retry these; they propagate as a fatal failure for the batch.
type TransportError struct {
	Op         string
	StatusCode int // 0 when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SessionExpiredError is the in-band session-expiry signal riding on an
// otherwise successful response. Retryable exactly once after reauthentication.
type SessionExpiredError struct {
	Code int
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("vendor session expired (code %d)", e.Code)
}

// RateLimitedError is the in-band rate-limit signal. The batch driver applies
// backoff before retrying; this layer never retries it silently.
type RateLimitedError struct {
	Code int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("vendor rate limit hit (code %d)", e.Code)
}

// VendorError carries a vendor-reported failure that is neither a session
// expiry nor a rate limit.
type VendorError struct {
	Code    string
	Message string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor error (code %s): %s", e.Code, e.Message)
}

// IsSessionExpired reports whether err is an in-band session-expiry signal.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError
	return errors.As(err, &se)
}

// IsRateLimited reports whether err is an in-band rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
