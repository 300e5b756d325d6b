// Package fault defines the error taxonomy shared by every extraction
// component. Errors are classified with cockroachdb/errors marks, so the
// classification survives fmt.Errorf("%w") wrapping and is checked with
// fault.Is rather than string matching.
package fault

import (
	"context"
	"fmt"
	"time"

	crdb "github.com/cockroachdb/errors"
)

// Classification sentinels. Compare with Is.
var (
	ErrAuthentication  = crdb.New("authentication failed")
	ErrNotFound        = crdb.New("not found")
	ErrRateLimited     = crdb.New("rate limited")
	ErrInvalidResponse = crdb.New("invalid response")
	ErrTimeout         = crdb.New("timeout")
	ErrTransient       = crdb.New("transient network error")
	ErrConfig          = crdb.New("invalid configuration")
)

// Re-exported helpers so callers need a single import.
var (
	Is       = crdb.Is
	As       = crdb.As
	WithHint = crdb.WithHint
	GetHints = crdb.GetAllHints
)

// Kind is the report-facing name of an error class.
type Kind string

const (
	KindAuthentication  Kind = "authentication"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindInvalidResponse Kind = "invalid_response"
	KindTimeout         Kind = "timeout"
	KindTransient       Kind = "transient"
	KindConfig          Kind = "config"
	KindInternal        Kind = "internal"
)

// New creates an error carrying msg, classified as sentinel.
func New(sentinel error, msg string) error {
	return crdb.Mark(crdb.NewWithDepth(1, msg), sentinel)
}

// Newf is New with formatting.
func Newf(sentinel error, format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepth(1, fmt.Sprintf(format, args...)), sentinel)
}

// Wrap annotates err with msg and classifies the result as sentinel.
// A nil err yields nil.
func Wrap(err, sentinel error, msg string) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(crdb.WrapWithDepth(1, err, msg), sentinel)
}

// Mark classifies err as sentinel without changing its message.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	return crdb.Mark(err, sentinel)
}

// RateLimitError is returned when a remote quota is exhausted. Reset is the
// moment the quota is restored (zero when the remote did not say).
type RateLimitError struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Status    int
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("rate limited (http %d)", e.Status)
	}
	return fmt.Sprintf("rate limited (http %d), resets at %s", e.Status, e.Reset.UTC().Format(time.RFC3339))
}

// Is lets the stdlib errors.Is see the classification too.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RateLimited builds a classified *RateLimitError.
func RateLimited(status, limit, remaining int, reset time.Time) error {
	return crdb.Mark(&RateLimitError{Limit: limit, Remaining: remaining, Reset: reset, Status: status}, ErrRateLimited)
}

// RateLimit extracts the *RateLimitError from err's chain.
func RateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if crdb.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// KindOf classifies err. Context deadlines count as timeouts.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrRateLimited):
		return KindRateLimited
	case Is(err, ErrAuthentication):
		return KindAuthentication
	case Is(err, ErrNotFound):
		return KindNotFound
	case Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case Is(err, ErrTimeout), Is(err, context.DeadlineExceeded):
		return KindTimeout
	case Is(err, ErrTransient):
		return KindTransient
	case Is(err, ErrConfig):
		return KindConfig
	}
	return KindInternal
}

// Retryable reports whether repeating the failed operation may succeed.
// Rate limits are not retryable here: waiting for the reset is the caller's
// decision.
func Retryable(err error) bool {
	if err == nil || Is(err, context.Canceled) || Is(err, ErrRateLimited) {
		return false
	}
	return Is(err, ErrTransient) || Is(err, ErrTimeout)
}
