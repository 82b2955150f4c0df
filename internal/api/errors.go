package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is the base error type for HTTP API errors.
// It supports errors.Is matching by status code and errors.As extraction.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // only set for 429
}

// Error returns the formatted error string.
func (e *APIError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is supports errors.Is matching by status code.
// ErrServer (500) matches any 5xx status code.
// All other sentinels require an exact status code match.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	// ErrServer matches any 5xx
	if t.StatusCode == 500 && e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == t.StatusCode
}

// Sentinel errors for common HTTP error status codes.
var (
	ErrBadRequest   = &APIError{StatusCode: 400, Message: "bad request"}
	ErrUnauthorized = &APIError{StatusCode: 401, Message: "unauthorized"}
	ErrForbidden    = &APIError{StatusCode: 403, Message: "forbidden"}
	ErrNotFound     = &APIError{StatusCode: 404, Message: "not found"}
	ErrConflict     = &APIError{StatusCode: 409, Message: "conflict"}
	ErrRateLimit    = &APIError{StatusCode: 429, Message: "rate limit exceeded"}
	ErrServer       = &APIError{StatusCode: 500, Message: "server error"}
)

// ConnectionError wraps a failure that occurred below the application
// protocol layer: name resolution, refused connections, broken transport.
// No HTTP response was received at all.
type ConnectionError struct {
	Op  string
	Err error
}

// Error returns the formatted error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("api: connection: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// FailureKind is the gateway's classification of a failed call, used to
// decide whether the failure escalates to the global health state.
type FailureKind int

const (
	// FailureOther is any application-level error status. It stays local
	// to the call site and never touches global health.
	FailureOther FailureKind = iota
	// FailureRateLimited means the server is alive but throttling (429).
	FailureRateLimited
	// FailureConnection means no response was received at all.
	FailureConnection
)

// String returns the classification name.
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureConnection:
		return "connection_error"
	default:
		return "other"
	}
}

// Classify determines the failure kind for an error returned by the gateway
// or by the streaming channel dialer.
func Classify(err error) FailureKind {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return FailureConnection
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return FailureRateLimited
		}
		return FailureOther
	}
	return FailureOther
}

// DefaultRetryAfter is the wait applied to a 429 response that carries no
// parseable retry hint.
const DefaultRetryAfter = 60 * time.Second

// maxErrorBody is the maximum number of bytes read from an error response body.
const maxErrorBody = 4096

// ParseRetryAfter parses a server retry hint formatted either as "HH:MM:SS"
// or as a bare integer count of seconds. Returns false for anything else.
func ParseRetryAfter(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return 0, false
		}
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		sec, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
			return 0, false
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, true
	}

	seconds, err := strconv.Atoi(s)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// errorFromResponse creates an *APIError from an HTTP response.
// It reads up to 4KB of the response body. For 429 responses the retry hint
// is taken from the Retry-After header, then from a retry_after body field,
// then defaulted.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = retryAfterHint(resp.Header.Get("Retry-After"), body)
	}

	return apiErr
}

// retryAfterHint resolves the retry hint for a 429 response.
func retryAfterHint(header string, body []byte) time.Duration {
	if d, ok := ParseRetryAfter(header); ok {
		return d
	}

	var fields struct {
		RetryAfter json.RawMessage `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &fields); err == nil && len(fields.RetryAfter) > 0 {
		var s string
		if err := json.Unmarshal(fields.RetryAfter, &s); err == nil {
			if d, ok := ParseRetryAfter(s); ok {
				return d
			}
		}
		var n int
		if err := json.Unmarshal(fields.RetryAfter, &n); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}

	return DefaultRetryAfter
}
