package vndb

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry reasons, used for logging and metrics.
const (
	reasonStatus429 = "status_429"
	reasonHTMLBody  = "html_body"
)

// RetryPolicy governs how throttled requests are retried. Network failures,
// error statuses and malformed bodies are never retried.
type RetryPolicy struct {
	// MaxAttempts bounds the number of requests per call. 0 means retry
	// until the upstream stops throttling or the context ends.
	MaxAttempts int `yaml:"max_attempts"`
	// DefaultRetryAfter is the wait after a 429 without a usable Retry-After.
	DefaultRetryAfter time.Duration `yaml:"default_retry_after"`
	// HTMLBackoff is the wait after a success status carrying an HTML page.
	HTMLBackoff time.Duration `yaml:"html_backoff"`
}

// DefaultRetryPolicy never gives up and waits 60s when the upstream does not
// say how long to back off.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       0,
		DefaultRetryAfter: 60 * time.Second,
		HTMLBackoff:       60 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.DefaultRetryAfter <= 0 {
		p.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if p.HTMLBackoff <= 0 {
		p.HTMLBackoff = def.HTMLBackoff
	}
	return p
}

// exhausted reports whether another attempt is allowed after attempt.
func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// retryAfter converts a Retry-After header value into a wait. It accepts
// delta-seconds or an HTTP date and falls back to DefaultRetryAfter.
func (p RetryPolicy) retryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return p.DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return p.DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return p.DefaultRetryAfter
}
