package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation reports bad evaluator or handler input. Fatal, never retried.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// ChannelError is the normalized failure shape every marketplace call resolves
// to. Upstream callers (adapter, router, orchestrator) depend on this shape and
// never see raw transport errors.
type ChannelError struct {
	Message    string
	Code       string
	HTTPStatus int
	Retryable  bool
	RetryAfter *time.Time
}

func (e *ChannelError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("channel error %s: %s", e.Code, e.Message)
	}
	return "channel error: " + e.Message
}

// ErrAuthentication means no usable credentials exist for the user/channel.
// Fatal until the user reconnects the channel.
type ErrAuthentication struct {
	Channel string
	Reason  string
}

func (e *ErrAuthentication) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.Channel, e.Reason)
}

// ErrTokenExpired means the access token lapsed and the refresh exchange also
// failed. Nothing succeeds until the user reconnects the channel.
type ErrTokenExpired struct {
	Channel string
	Reason  string
}

func (e *ErrTokenExpired) Error() string {
	return fmt.Sprintf("token expired for %s: %s", e.Channel, e.Reason)
}

// ErrRateLimit means the daily revision quota is exhausted. ResetAt is the
// marketplace-local midnight at which the counter rolls over.
type ErrRateLimit struct {
	Channel   string
	Remaining int
	ResetAt   time.Time
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limit reached for %s, resets at %s", e.Channel, e.ResetAt.Format(time.RFC3339))
}

// NewChannelError builds a normalized provider failure.
func NewChannelError(message, code string, httpStatus int, retryable bool) *ChannelError {
	return &ChannelError{Message: message, Code: code, HTTPStatus: httpStatus, Retryable: retryable}
}

// IsRetryable reports whether err may succeed on a later attempt without human
// intervention. Rate limits count as retryable because they clear at the reset
// boundary; auth, token and validation failures do not.
func IsRetryable(err error) bool {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	var rl *ErrRateLimit
	return errors.As(err, &rl)
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Time, bool) {
	var ce *ChannelError
	if errors.As(err, &ce) && ce.RetryAfter != nil {
		return *ce.RetryAfter, true
	}
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return rl.ResetAt, true
	}
	return time.Time{}, false
}
