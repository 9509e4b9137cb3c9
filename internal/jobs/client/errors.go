package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ValidationError means the request was malformed. It is surfaced immediately and never
// retried automatically.
type ValidationError struct {
	Field      string
	Message    string
	StatusCode int
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "invalid job request"
	}
	if strings.TrimSpace(e.Field) != "" {
		return fmt.Sprintf("invalid job request: %s: %s", e.Field, e.Message)
	}
	return "invalid job request: " + e.Message
}

// NetworkError is a transport level failure: the backend could not be reached, answered
// with a server error, or returned a body that could not be understood.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means a single HTTP call exceeded its bounded timeout.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return "request timed out"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s, please try again", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s timed out, please try again", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NotFoundError means the backend does not know the job id, or it has expired.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "job not found"
	}
	return "job not found: " + e.JobID
}

// JobFailedError carries a backend-reported business failure verbatim.
type JobFailedError struct {
	JobID   string
	Message string
}

const defaultJobFailedMessage = "Job failed"

func (e *JobFailedError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return defaultJobFailedMessage
	}
	return e.Message
}

// IsFatal reports whether err ends tracking of a handle. Caller cancellation is not fatal:
// it only means the handle was superseded or torn down.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var (
		ne *NetworkError
		te *TimeoutError
		nf *NotFoundError
		jf *JobFailedError
	)
	return errors.As(err, &ne) || errors.As(err, &te) || errors.As(err, &nf) || errors.As(err, &jf)
}

// Message renders err as a human readable, never empty, message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		ne *NetworkError
		te *TimeoutError
		nf *NotFoundError
		jf *JobFailedError
	)
	switch {
	case errors.As(err, &jf):
		return jf.Error()
	case errors.As(err, &te):
		return te.Error()
	case errors.As(err, &nf):
		return "This job is no longer available. Please try again."
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ne):
		if ne.StatusCode >= 500 {
			return "The generation service is having trouble. Please try again."
		}
		return "Failed to connect to server. Please check your connection and try again."
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "Unexpected error"
}

// errorBody extracts a message from either an {"error":{"message":...}} envelope, an
// {"error":"..."} object, or a plain text body.
func errorBody(status int, raw []byte) string {
	body := strings.TrimSpace(string(raw))
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var flat string
		if err := json.Unmarshal(env.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
			return strings.TrimSpace(flat)
		}
	}
	if body != "" {
		return body
	}
	return http.StatusText(status)
}
