package core

import "fmt"

// Error codes delivered to clients in error events.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInvalidEvent = "invalid_event"
	ErrCodeNotFound     = "not_found"
	ErrCodePersistence  = "persistence_failure"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// Sentinels for errors.Is; any *CoreError with the same code matches.
var (
	ErrUnauthorized = coreError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidEvent = coreError(ErrCodeInvalidEvent, "invalid event")
	ErrNotFound     = coreError(ErrCodeNotFound, "not found")
	ErrPersistence  = coreError(ErrCodePersistence, "persistence failure")
)

// CoreError wraps a code and human-readable message.
// Detail carries the underlying cause for persistence failures.
type CoreError struct {
	Code    string
	Message string
	Detail  string
}

func (e *CoreError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Is reports whether target is a CoreError with the same code.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func invalidEvent(format string, args ...any) *CoreError {
	return coreError(ErrCodeInvalidEvent, fmt.Sprintf(format, args...))
}

func notFound(what string) *CoreError {
	return coreError(ErrCodeNotFound, what+" not found")
}

func persistenceFailure(op string, err error) *CoreError {
	return &CoreError{Code: ErrCodePersistence, Message: "failed to " + op, Detail: err.Error()}
}
