package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestErrValidationError(t *testing.T) {
	err := &ErrValidation{Field: "asking_price", Message: "must be positive"}
	if got, want := err.Error(), "asking_price: must be positive"; got != want {
		t.Fatalf("unexpected error string: got %q want %q", got, want)
	}
}

func TestIsRetryable(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient channel error", NewChannelError("timeout", "SYSTEM", 503, true), true},
		{"bad request channel error", NewChannelError("invalid sku", "REQUEST_INVALID", 400, false), false},
		{"rate limit", &ErrRateLimit{Channel: "ebay", ResetAt: reset}, true},
		{"authentication", &ErrAuthentication{Channel: "ebay", Reason: "no connection"}, false},
		{"token expired", &ErrTokenExpired{Channel: "ebay", Reason: "refresh rejected"}, false},
		{"validation", &ErrValidation{Field: "offer", Message: "missing"}, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsRetryableWrapped(t *testing.T) {
	inner := NewChannelError("upstream 500", "SYSTEM", 500, true)
	wrapped := fmt.Errorf("executing reprice: %w", inner)
	if !IsRetryable(wrapped) {
		t.Fatal("expected wrapped channel error to stay retryable")
	}
}

func TestRetryAfter(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	ce := NewChannelError("too many requests", "RATE", 429, true)
	ce.RetryAfter = &reset
	if got, ok := RetryAfter(ce); !ok || !got.Equal(reset) {
		t.Fatalf("channel error retry-after: got %v ok=%v", got, ok)
	}

	rl := &ErrRateLimit{Channel: "ebay", ResetAt: reset}
	if got, ok := RetryAfter(rl); !ok || !got.Equal(reset) {
		t.Fatalf("rate limit retry-after: got %v ok=%v", got, ok)
	}

	if _, ok := RetryAfter(&ErrAuthentication{Channel: "ebay"}); ok {
		t.Fatal("auth error should not carry retry-after")
	}
}
