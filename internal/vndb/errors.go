package vndb

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes a caller may need to act on.
var (
	ErrNetwork           = errors.New("network error")
	ErrUpstream          = errors.New("upstream error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidID         = errors.New("invalid id")
)

// maxDiagnosticBody caps how much of an error body is kept for diagnostics.
const maxDiagnosticBody = 200

// NetworkError reports a transport-level failure: refused connection,
// timeout, DNS and the like.
type NetworkError struct {
	Op  string // Operation that failed (e.g., "search")
	Err error  // Underlying transport error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("vndb %s: %v: %v", e.Op, ErrNetwork, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// UpstreamError reports a non-success status other than 429.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string // First 200 characters of the response body
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("vndb %s: upstream returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("vndb %s: upstream returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// MalformedResponseError reports a success response whose body could not be
// used: invalid JSON, or a record missing required fields.
type MalformedResponseError struct {
	Op   string
	Body string // First 200 characters of the offending body, if any
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("vndb %s: %v: %v", e.Op, ErrMalformedResponse, e.Err)
}

func (e *MalformedResponseError) Unwrap() []error {
	return []error{ErrMalformedResponse, e.Err}
}

// NotFoundError reports a detail lookup that matched no record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vndb record %q: %v", e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitedError is returned only when a bounded RetryPolicy runs out of
// attempts. The default policy retries throttled requests forever.
type RateLimitedError struct {
	Op       string
	Attempts int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("vndb %s: %v after %d attempts", e.Op, ErrRateLimited, e.Attempts)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// InvalidIDError reports an id that is not a VNDB visual novel id.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%v: %q is not a visual novel id", ErrInvalidID, e.ID)
}

func (e *InvalidIDError) Unwrap() error {
	return ErrInvalidID
}

// truncate shortens s to at most n characters.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
