package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors that can be checked with errors.Is against an *APIError.
var (
	// ErrRemoteRejected matches every non-success response from the server.
	ErrRemoteRejected = errors.New("api: request rejected by server")
	// ErrUnauthorized indicates missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrForbidden indicates the account is not allowed to do this (e.g. locked).
	ErrForbidden = errors.New("api: forbidden")
	// ErrNotFound indicates the account or item does not exist.
	ErrNotFound = errors.New("api: not found")
	// ErrConflict indicates the resource already exists.
	ErrConflict = errors.New("api: conflict")
	// ErrRateLimited indicates the server is throttling this client.
	ErrRateLimited = errors.New("api: rate limit exceeded")
	// ErrNoTokenSource indicates a protected endpoint was called without a session.
	ErrNoTokenSource = errors.New("api: no token source configured")
)

// APIError is an HTTP error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("api error %d: %s (request_id: %s)", e.StatusCode, msg, e.RequestID)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	if target == ErrRemoteRejected {
		return true
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusForbidden:
		return target == ErrForbidden
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusConflict:
		return target == ErrConflict
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError is a transport-level failure: the request never produced
// an HTTP response.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
