package domain

import (
	"context"
	"errors"
	"fmt"
)

type FailureCause string

const (
	CauseConnection FailureCause = "connection"
	CauseTimeout    FailureCause = "timeout"
	CauseMalformed  FailureCause = "malformed_response"
	CauseServer     FailureCause = "server"
	CauseRejected   FailureCause = "rejected"
	CauseValidation FailureCause = "validation"
	CauseUnknown    FailureCause = "unknown"
)

// NetworkError describes a failed call to a remote dependency. It unwraps to
// both ErrNetwork and the transport error.
type NetworkError struct {
	Service string
	Cause   FailureCause
	Err     error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Cause, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// Retryable reports whether repeating the call can reasonably succeed.
func (e *NetworkError) Retryable() bool {
	switch e.Cause {
	case CauseConnection, CauseTimeout, CauseServer, CauseMalformed:
		return true
	default:
		return false
	}
}

type FailureInfo struct {
	Cause      FailureCause `json:"cause"`
	Title      string       `json:"title"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion"`
	Retryable  bool         `json:"retryable"`
}

// FailureInfoFor turns an upload or extraction error into a user-facing
// description.
func FailureInfoFor(err error) *FailureInfo {
	if err == nil {
		return nil
	}

	var netErr *NetworkError
	cause := CauseUnknown
	switch {
	case errors.As(err, &netErr):
		cause = netErr.Cause
	case errors.Is(err, context.DeadlineExceeded):
		cause = CauseTimeout
	case IsKind(err, ErrInvalidInput):
		cause = CauseValidation
	}

	info := &FailureInfo{Cause: cause, Message: err.Error()}
	switch cause {
	case CauseConnection:
		info.Title = "Connection Failed"
		info.Message = "Cannot connect to the processing server"
		info.Suggestion = "Make sure the extraction workflow is running and its webhook is active"
		info.Retryable = true
	case CauseMalformed:
		info.Title = "Invalid Response"
		info.Message = "The server returned an empty or invalid response"
		info.Suggestion = "Check that the extraction workflow is listening and returns JSON"
		info.Retryable = true
	case CauseTimeout:
		info.Title = "Request Timeout"
		info.Message = "The server took too long to respond"
		info.Suggestion = "The invoice may be complex. Retry it from the processing queue"
		info.Retryable = true
	case CauseServer:
		info.Title = "Server Error"
		info.Message = "The processing server encountered an error"
		info.Suggestion = "Check the extraction workflow execution logs for details"
		info.Retryable = true
	case CauseRejected:
		info.Title = "Processing Failed"
		info.Suggestion = "Check that the file is a valid invoice document"
		info.Retryable = true
	case CauseValidation:
		info.Title = "Validation Error"
		info.Suggestion = "Upload a PDF, PNG or JPG file up to the size limit"
	default:
		info.Title = "Upload Failed"
		info.Suggestion = "Try again or check the service logs for more details"
		info.Retryable = true
	}
	return info
}
