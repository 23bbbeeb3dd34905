package common

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input parameter")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// IsNotFound checks if err is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if err is or wraps ErrInvalidInput
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if err is or wraps ErrTimeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable checks if err is or wraps ErrUnavailable
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// NotFoundError returns a wrapped not found error with context
func NotFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// InvalidInputError returns a wrapped invalid input error with context
func InvalidInputError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// TimeoutError returns a wrapped timeout error with context
func TimeoutError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrTimeout)
}

// UnavailableError returns a wrapped unavailable error with context
func UnavailableError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnavailable)
}

// ErrHostUnreachable represents a host that cannot be contacted
type ErrHostUnreachable struct {
	Host   string
	Reason string
}

func (e ErrHostUnreachable) Error() string {
	return fmt.Sprintf("host unreachable: %s: %s", e.Host, e.Reason)
}

// NewHostUnreachableError creates a new host unreachable error
func NewHostUnreachableError(host, reason string) error {
	return ErrHostUnreachable{Host: host, Reason: reason}
}

// ErrUnexpectedStatus represents an unexpected HTTP status from a polled
// service
type ErrUnexpectedStatus struct {
	Service string
	Status  int
}

func (e ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("unexpected status from %s: %d", e.Service, e.Status)
}

// NewUnexpectedStatusError creates a new unexpected status error
func NewUnexpectedStatusError(service string, status int) error {
	return ErrUnexpectedStatus{Service: service, Status: status}
}

// IsHostUnreachableError checks if err is an ErrHostUnreachable
func IsHostUnreachableError(err error) bool {
	var errHostUnreachable ErrHostUnreachable
	return errors.As(err, &errHostUnreachable)
}

// IsUnexpectedStatusError checks if err is an ErrUnexpectedStatus
func IsUnexpectedStatusError(err error) bool {
	var errUnexpectedStatus ErrUnexpectedStatus
	return errors.As(err, &errUnexpectedStatus)
}
