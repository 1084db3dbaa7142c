package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
)

type statusErr struct{ status int }

func (e *statusErr) Error() string   { return "api status error" }
func (e *statusErr) StatusCode() int { return e.status }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetryStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{403, false},
		{404, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(&statusErr{status: tc.status}); got != tc.want {
			t.Fatalf("ShouldRetry(status %d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestShouldRetryTransportErrors(t *testing.T) {
	if !ShouldRetry(timeoutErr{}) {
		t.Fatal("timeouts must be retryable")
	}
	if !ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("connection refused")}) {
		t.Fatal("dial failures must be retryable")
	}
	if ShouldRetry(&net.OpError{Op: "read", Err: errors.New("connection reset")}) {
		t.Fatal("plain read failures are not retryable")
	}
	if ShouldRetry(nil) {
		t.Fatal("nil error must not be retryable")
	}
	if ShouldRetry(errors.New("some app error")) {
		t.Fatal("arbitrary errors must not be retryable")
	}
}

func TestShouldRetryUnwrapsURLError(t *testing.T) {
	wrapped := &url.Error{Op: "Post", URL: "https://graph/me", Err: timeoutErr{}}
	if !ShouldRetry(wrapped) {
		t.Fatal("url.Error wrapping a timeout must be retryable")
	}

	inner := &url.Error{Op: "Post", URL: "https://graph/me", Err: context.Canceled}
	if ShouldRetry(inner) {
		t.Fatal("cancellation must not be retried")
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 599} {
		if !RetryableStatus(code) {
			t.Fatalf("RetryableStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 301, 400, 404, 422} {
		if RetryableStatus(code) {
			t.Fatalf("RetryableStatus(%d) = true, want false", code)
		}
	}
}

func TestRedactToken(t *testing.T) {
	cases := map[string]string{
		"": "",
		`Post "https://graph.facebook.com/v19.0/me/messages?access_token=EAAbC123": EOF`: `Post "https://graph.facebook.com/v19.0/me/messages?access_token=<redacted>": EOF`,
		"access_token=secret&recipient=1": "access_token=<redacted>&recipient=1",
		"no token here":                   "no token here",
	}
	for in, want := range cases {
		if got := RedactToken(in); got != want {
			t.Fatalf("RedactToken(%q) = %q, want %q", in, got, want)
		}
	}
}
