// Package errors provides the typed error surface shared by the vertad
// services. Errors carry a category, the operation that failed, optional
// key/value context, and a retryability decision that pkg/retry and
// pkg/circuit act on. Consensus arithmetic never returns these: validation
// outcomes are booleans and invariant violations abort, so everything here
// is infrastructure failure.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType categorizes a failure by the subsystem it came from.
type ErrorType string

const (
	// ErrorTypeNetwork covers generic connectivity failures.
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeValidation covers bad inputs and malformed data. Never
	// retried: the same input always fails the same way.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeDatabase covers Postgres, Redis, and Influx failures.
	ErrorTypeDatabase ErrorType = "database"
	// ErrorTypeNode covers Verta node RPC and ZMQ failures.
	ErrorTypeNode ErrorType = "node"
	// ErrorTypeKafka covers event publishing and consuming failures.
	ErrorTypeKafka ErrorType = "kafka"
	// ErrorTypeTimeout covers deadline expirations below the context layer.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal covers everything unclassified.
	ErrorTypeInternal ErrorType = "internal"
)

// ServiceError is the structured error the services wrap failures into.
type ServiceError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]any
	Timestamp time.Time
	Retryable bool
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s operation '%s' failed: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s operation '%s' failed: %s", e.Type, e.Operation, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether retrying this operation can succeed.
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// WithContext attaches a key/value pair for logs and diagnostics.
func (e *ServiceError) WithContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a ServiceError with retryability derived from its type.
func New(errorType ErrorType, operation, message string) *ServiceError {
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: typeRetryable(errorType),
	}
}

// Wrap converts err into a ServiceError, preserving it as the cause. A
// wrapped ServiceError keeps its own retryability decision; anything else
// is judged by its type and by well-known transient failure patterns.
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}

	retryable := typeRetryable(errorType) || transientPattern(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		retryable = false
	}
	if se, ok := err.(*ServiceError); ok {
		retryable = se.Retryable
	}

	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Retryable: retryable,
	}
}

// typeRetryable maps categories to a default retry decision. Node, store,
// broker, and network failures are transient by nature; validation and
// internal failures are not.
func typeRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeKafka,
		ErrorTypeNode, ErrorTypeDatabase:
		return true
	default:
		return false
	}
}

// transientPattern recognizes transient failures in plain errors by their
// message. Context cancellation is final regardless of message.
func transientPattern(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"network unreachable",
		"timeout",
		"temporary failure",
		"too many connections",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsType reports whether err is a ServiceError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// IsRetryable reports whether the retry layer should try err again.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return transientPattern(err)
}

// GetContext returns the context map of a ServiceError, or nil.
func GetContext(err error) map[string]any {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Context
	}
	return nil
}
