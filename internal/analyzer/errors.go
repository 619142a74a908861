package analyzer

import (
	"context"
	"errors"
	"net"
)

// PermissionMessage is the user-facing message for credential failures.
const PermissionMessage = "403 Forbidden: Check your API Key's validity or permissions."

// TransientError marks a rate-limit or network-level failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PermissionError marks an invalid or forbidden credential. It is never retried.
type PermissionError struct {
	StatusCode int
	Err        error
}

func (e *PermissionError) Error() string {
	return PermissionMessage
}

func (e *PermissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsPermission reports whether err is (or wraps) a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is a rate-limit, timeout or temporary network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ClassifyStatus wraps err according to an HTTP status code returned by a model backend.
func ClassifyStatus(code int, err error) error {
	switch {
	case code == 401 || code == 403:
		return &PermissionError{StatusCode: code, Err: err}
	case code == 429 || code/100 == 5:
		return &TransientError{Err: err}
	}
	return err
}

// ClassifyNetwork wraps timeouts and temporary network errors as transient.
func ClassifyNetwork(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Err: err}
	}
	return err
}
