package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty      = errors.New("cache key empty")
	ErrCacheEntryNotFound = errors.New("cache entry not found")
	ErrCacheStopped       = errors.New("cache stopped")
	ErrFetcherIsNil       = errors.New("fetcher is nil")
)

var (
	ErrMutationActionIsNil = errors.New("mutation action is nil")
	ErrMutationNoTags      = errors.New("mutation declares no tags")
)

var (
	ErrSessionAnonymous    = errors.New("session anonymous")
	ErrSessionInvalidState = errors.New("session invalid state")
	ErrTokenEmpty          = errors.New("token empty")
)

var (
	ErrStorageTypeUnknown      = errors.New("storage type unknown")
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageSlotEmpty        = errors.New("storage slot empty")
)

var (
	ErrExecutorStopped    = errors.New("executor stopped")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
	ErrResponseInvalid    = errors.New("response invalid")
)

var (
	ErrRealtimeDisabled       = errors.New("realtime is disabled")
	ErrRealtimeConfigInvalid  = errors.New("realtime config invalid")
	ErrRealtimeNotConnected   = errors.New("realtime not connected")
	ErrRealtimeMessageInvalid = errors.New("realtime message invalid")
)

var (
	ErrManagerAlreadyRunning = errors.New("manager already running")
	ErrManagerNotRunning     = errors.New("manager not running")
)

var (
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

// ErrorKind classifies a transport failure. Every failed request maps to
// exactly one kind; consumers branch on the kind, never on status codes.
type ErrorKind string

const (
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindNetwork      ErrorKind = "network"
	ErrorKindUnknown      ErrorKind = "unknown"
)

type APIError struct {
	Kind    ErrorKind   `json:"kind"`
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func NewAPIError(kind ErrorKind, status int, message string, details interface{}) *APIError {
	return &APIError{Kind: kind, Status: status, Message: message, Details: details}
}

func NewNetworkError(cause error) *APIError {
	return &APIError{Kind: ErrorKindNetwork, Message: "request failed", cause: cause}
}

// ClassifyError returns the kind of err, or ErrorKindUnknown when err is not
// an APIError.
func ClassifyError(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrorKindUnknown
}

func IsUnauthorized(err error) bool {
	return ClassifyError(err) == ErrorKindUnauthorized
}

func IsNotFound(err error) bool {
	return ClassifyError(err) == ErrorKindNotFound
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
