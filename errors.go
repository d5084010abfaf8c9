package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"strings"
	"time"
)

// ErrorCode identifies a class of engine error
type ErrorCode string

const (
	// System errors (1000-1999)
	ErrCodeSystem             ErrorCode = "RAFFLE_1000"
	ErrCodeRedisConnection    ErrorCode = "RAFFLE_1001"
	ErrCodeRedisTimeout       ErrorCode = "RAFFLE_1002"
	ErrCodeConfigInvalid      ErrorCode = "RAFFLE_1004"
	ErrCodeServiceUnavailable ErrorCode = "RAFFLE_1005"

	// Allocation errors (2000-2999)
	ErrCodeInvalidParameters    ErrorCode = "RAFFLE_2000"
	ErrCodeInvalidPoolSize      ErrorCode = "RAFFLE_2001"
	ErrCodePoolExhausted        ErrorCode = "RAFFLE_2002"
	ErrCodeInvalidNotifyDelay   ErrorCode = "RAFFLE_2003"
	ErrCodeInvalidQuantityLimit ErrorCode = "RAFFLE_2004"
	ErrCodeInvalidRetryAttempts ErrorCode = "RAFFLE_2011"
	ErrCodeInvalidRetryInterval ErrorCode = "RAFFLE_2012"

	// Circuit breaker errors (5000-5999)
	ErrCodeCircuitBreakerOpen ErrorCode = "RAFFLE_5002"

	// Snapshot errors (6000-6999)
	ErrCodeSnapshotNotFound      ErrorCode = "RAFFLE_6000"
	ErrCodeSnapshotSaveFailure   ErrorCode = "RAFFLE_6001"
	ErrCodeSnapshotLoadFailure   ErrorCode = "RAFFLE_6002"
	ErrCodeSnapshotCorrupted     ErrorCode = "RAFFLE_6003"
	ErrCodeSerializationFailed   ErrorCode = "RAFFLE_6004"
	ErrCodeDeserializationFailed ErrorCode = "RAFFLE_6005"
)

// ErrorSeverity classifies how serious an error is
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// RaffleError is the coded error type returned by the engine and its adapters
type RaffleError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error implements the error interface
func (e *RaffleError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *RaffleError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same error code
func (e *RaffleError) Is(target error) bool {
	if t, ok := target.(*RaffleError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone copies e so the predefined sentinels are never mutated
func (e *RaffleError) clone() *RaffleError {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Timestamp = time.Now()
	return &c
}

// WithCause returns a copy of e wrapping cause
func (e *RaffleError) WithCause(cause error) *RaffleError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetails returns a copy of e with details attached
func (e *RaffleError) WithDetails(details string) *RaffleError {
	c := e.clone()
	c.Details = details
	return c
}

// WithSessionID returns a copy of e tagged with the editing session
func (e *RaffleError) WithSessionID(sessionID string) *RaffleError {
	c := e.clone()
	c.SessionID = sessionID
	return c
}

// WithOperation returns a copy of e tagged with the failing operation
func (e *RaffleError) WithOperation(operation string) *RaffleError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata returns a copy of e with one metadata entry added
func (e *RaffleError) WithMetadata(key string, value any) *RaffleError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace records the current goroutine stack
func (e *RaffleError) WithStackTrace() *RaffleError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// NewError creates a non-retryable error
func NewError(code ErrorCode, message string) *RaffleError {
	return &RaffleError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError creates a retryable error
func NewRetryableError(code ErrorCode, message string) *RaffleError {
	return &RaffleError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Retryable: true,
	}
}

// NewCriticalError creates a critical error carrying a stack trace
func NewCriticalError(code ErrorCode, message string) *RaffleError {
	err := &RaffleError{
		Code:      code,
		Message:   message,
		Severity:  SeverityCritical,
		Timestamp: time.Now(),
	}
	return err.WithStackTrace()
}

var (
	ErrSystemError           = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrRedisConnectionFailed = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrRedisTimeout          = NewRetryableError(ErrCodeRedisTimeout, "Redis operation timeout")
	ErrConfigInvalid         = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrServiceUnavailable    = NewRetryableError(ErrCodeServiceUnavailable, "service temporarily unavailable")

	ErrInvalidParameters    = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidPoolSize      = NewError(ErrCodeInvalidPoolSize, "invalid pool size: cannot be negative")
	ErrPoolExhausted        = NewError(ErrCodePoolExhausted, "ticket pool exhausted")
	ErrInvalidNotifyDelay   = NewError(ErrCodeInvalidNotifyDelay, "invalid notify delay: must be between 0 and 5s")
	ErrInvalidQuantityLimit = NewError(ErrCodeInvalidQuantityLimit, "invalid max category quantity: must be positive")
	ErrInvalidRetryAttempts = NewError(ErrCodeInvalidRetryAttempts, "invalid retry attempts: must be between 0 and 10")
	ErrInvalidRetryInterval = NewError(ErrCodeInvalidRetryInterval, "invalid retry interval: cannot be negative")

	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")

	ErrSnapshotNotFound      = NewError(ErrCodeSnapshotNotFound, "session snapshot not found")
	ErrSnapshotSaveFailure   = NewRetryableError(ErrCodeSnapshotSaveFailure, "failed to save session snapshot")
	ErrSnapshotLoadFailure   = NewRetryableError(ErrCodeSnapshotLoadFailure, "failed to load session snapshot")
	ErrSnapshotCorrupted     = NewError(ErrCodeSnapshotCorrupted, "session snapshot is corrupted")
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")
)

// ErrorHandler decides how failed operations are reported and retried
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(attempt int, err error) time.Duration
}

// DefaultErrorHandler logs errors and applies exponential backoff with jitter
type DefaultErrorHandler struct {
	logger        Logger
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

// NewDefaultErrorHandler creates the default error handler
func NewDefaultErrorHandler(logger Logger) *DefaultErrorHandler {
	return &DefaultErrorHandler{
		logger:        logger,
		baseDelay:     DefaultRetryInterval,
		maxDelay:      5 * time.Second,
		backoffFactor: 2.0,
	}
}

// NewErrorHandlerWithDelay creates an error handler with a custom base delay
func NewErrorHandlerWithDelay(logger Logger, baseDelay time.Duration) *DefaultErrorHandler {
	h := NewDefaultErrorHandler(logger)
	h.baseDelay = baseDelay
	return h
}

type sessionIDKey struct{}

// ContextWithSessionID attaches an editing session id to ctx for error reporting
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// HandleError converts err to a *RaffleError, tags it from ctx and logs it
func (h *DefaultErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var raffleErr *RaffleError
	if errors.As(err, &raffleErr) {
		raffleErr = raffleErr.clone()
	} else {
		raffleErr = ErrSystemError.WithDetails(err.Error()).WithCause(err).WithStackTrace()
		raffleErr.Retryable = IsRetryableError(err)
	}

	if id, ok := ctx.Value(sessionIDKey{}).(string); ok && id != "" {
		raffleErr.SessionID = id
	}

	h.logError(raffleErr)
	return raffleErr
}

// ShouldRetry reports whether err is worth retrying
func (h *DefaultErrorHandler) ShouldRetry(err error) bool {
	var raffleErr *RaffleError
	if errors.As(err, &raffleErr) {
		return raffleErr.Retryable
	}
	return IsRetryableError(err)
}

// GetRetryDelay returns the backoff delay for the given attempt (1-based)
func (h *DefaultErrorHandler) GetRetryDelay(attempt int, err error) time.Duration {
	if attempt <= 0 {
		return h.baseDelay
	}

	delay := float64(h.baseDelay)
	for i := 1; i < attempt; i++ {
		delay *= h.backoffFactor
	}

	// ±25% jitter
	delay += delay * 0.25 * (2*rand.Float64() - 1)

	if time.Duration(delay) > h.maxDelay {
		return h.maxDelay
	}
	return time.Duration(delay)
}

func (h *DefaultErrorHandler) logError(err *RaffleError) {
	switch err.Severity {
	case SeverityCritical:
		h.logger.Error("Critical error occurred: %s", err.Error())
	case SeverityHigh, SeverityMedium:
		h.logger.Error("Error occurred: %s (retryable=%t, session=%s)", err.Error(), err.Retryable, err.SessionID)
	default:
		h.logger.Info("Low severity error: %s", err.Error())
	}
}

// IsRetryableError checks whether err looks like a transient network failure
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"read tcp",
		"write tcp",
		"no route to host",
		"redis: connection pool timeout",
		"redis: client is closed",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ErrorRecovery runs operations with retry according to an ErrorHandler
type ErrorRecovery struct {
	handler    ErrorHandler
	maxRetries int
	logger     Logger
}

// NewErrorRecovery creates a retry strategy
func NewErrorRecovery(handler ErrorHandler, maxRetries int, logger Logger) *ErrorRecovery {
	return &ErrorRecovery{
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExecuteWithRetry runs operation until it succeeds, fails permanently or retries run out
func (r *ErrorRecovery) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return NewError(ErrCodeSystem, "operation cancelled").WithCause(ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after %d retries", attempt)
			}
			return nil
		}

		lastErr = r.handler.HandleError(ctx, err)
		if !r.handler.ShouldRetry(lastErr) {
			r.logger.Debug("Error is not retryable: %v", lastErr)
			return lastErr
		}

		if attempt < r.maxRetries {
			delay := r.handler.GetRetryDelay(attempt+1, lastErr)
			r.logger.Debug("Retrying operation in %v (attempt %d/%d)", delay, attempt+1, r.maxRetries)

			select {
			case <-ctx.Done():
				return NewError(ErrCodeSystem, "operation cancelled during retry").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return NewError(ErrCodeSystem, fmt.Sprintf("operation failed after %d attempts", r.maxRetries+1)).WithCause(lastErr)
}
