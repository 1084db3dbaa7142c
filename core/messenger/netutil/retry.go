package netutil

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
)

// statusCoder is implemented by API errors that carry the HTTP status
// they arrived with.
type statusCoder interface {
	StatusCode() int
}

// ShouldRetry reports whether an error is worth retrying. It covers
// transient dial/timeout failures produced by net/http while contacting
// the Graph API, plus API responses with a retryable HTTP status.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.StatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
		if nested, ok := opErr.Err.(net.Error); ok && nested.Timeout() {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status from the API merits a
// retry: throttling and server-side failures do, client errors do not.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

var tokenRe = regexp.MustCompile(`access_token=[^&\s"']+`)

// RedactToken strips page access tokens from a message before it
// reaches logs or wrapped errors. URL errors embed the full request
// URL, query string included.
func RedactToken(msg string) string {
	if msg == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(msg, "access_token=<redacted>")
}
