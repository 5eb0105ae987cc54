package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a RequestError.
type Kind string

const (
	KindNetwork    Kind = "network"    // no response: dial, timeout, open circuit
	KindAuth       Kind = "auth"       // 401 not recovered by a refresh
	KindValidation Kind = "validation" // other 4xx
	KindServer     Kind = "server"     // 5xx
)

// Sentinels matched by errors.Is against a *RequestError of the same kind.
var (
	ErrNetwork    = errors.New("api: network error")
	ErrAuth       = errors.New("api: unauthorized")
	ErrValidation = errors.New("api: validation error")
	ErrServer     = errors.New("api: server error")
)

// RequestError represents a failed API call.
type RequestError struct {
	Kind       Kind
	StatusCode int // 0 when no response was received
	Method     string
	Path       string
	Message    string
	Body       []byte
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("api %s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Kind)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *RequestError) Is(target error) bool {
	switch e.Kind {
	case KindNetwork:
		return target == ErrNetwork
	case KindAuth:
		return target == ErrAuth
	case KindValidation:
		return target == ErrValidation
	case KindServer:
		return target == ErrServer
	}
	return false
}

// IsRetryable returns true if the error should trigger a retry.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

func isUnauthorized(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized
}

// countsAsOutage reports whether err should count against the circuit
// breaker. Client errors and caller cancellation do not.
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return true
	}
	return reqErr.Kind == KindNetwork || reqErr.Kind == KindServer
}

// errorMessage extracts a human readable message from an error body,
// falling back to the status text.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, m := range []string{payload.Detail, payload.Message, payload.Error} {
			if m != "" {
				return m
			}
		}
	}
	return http.StatusText(status)
}
