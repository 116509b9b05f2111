package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnreachable marks a call that did not get an application answer:
// transport failure, timeout, 5xx, 429, 408, or an access failure.
var ErrUnreachable = errors.New("remote unreachable")

// ErrAccessDenied marks a 401, 403 or 404. The credentials or the endpoint
// are wrong, not the payload, so the call counts as unreachable and a queued
// write stays queued until the configuration is fixed.
var ErrAccessDenied = errors.New("remote access denied")

// UnreachableError describes a connectivity failure.
type UnreachableError struct {
	Op     string
	Status int // HTTP status when one was received, else 0
	Err    error
}

func (e *UnreachableError) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("remote unreachable: %s: status %d: %v", e.Op, e.Status, e.Err)
		}
		return fmt.Sprintf("remote unreachable: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("remote unreachable: %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Is makes every UnreachableError match ErrUnreachable.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// RejectedError is an application-level refusal, such as failed validation.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote rejected (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote rejected (%d): %s", e.Status, e.Message)
}

// IsUnreachable reports whether err is a connectivity failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsAccessDenied reports whether err came from a 401, 403 or 404.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsRejected reports whether err is an application-level refusal.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// retryableStatus reports whether an HTTP status means "try again later".
func retryableStatus(status int) bool {
	return status >= 500 ||
		status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout
}

// accessStatus reports whether an HTTP status points at credentials or the
// endpoint rather than the request body.
func accessStatus(status int) bool {
	return status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusNotFound
}
