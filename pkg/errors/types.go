package errors

import (
	"fmt"
	"strings"
)

// ErrorCode identifies a failure class in the dispatch taxonomy. Codes are
// surfaced verbatim on terminal-failed work orders, so they stay stable.
type ErrorCode string

const (
	// Executor failure codes
	ErrCodeContractNotFound    ErrorCode = "contract_not_found"
	ErrCodeInputSchemaInvalid  ErrorCode = "input_schema_invalid"
	ErrCodeBudgetExhausted     ErrorCode = "budget_exhausted"
	ErrCodeGatewayError        ErrorCode = "gateway_error"
	ErrCodeTurnLimitExceeded   ErrorCode = "turn_limit_exceeded"
	ErrCodeOutputSchemaInvalid ErrorCode = "output_schema_invalid"
	ErrCodeExecutionError      ErrorCode = "execution_error"

	// Work order lifecycle codes
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrCodeInvalidWorkOrder  ErrorCode = "invalid_work_order"

	// Collaborator codes
	ErrCodeLedgerWrite    ErrorCode = "ledger_write"
	ErrCodeSessionUnknown ErrorCode = "session_unknown"
	ErrCodeConfigInvalid  ErrorCode = "config_invalid"
)

// Error is a structured dispatch error. Its string form is
// "<code>: <message>", which is exactly the format recorded on a failed
// work order.
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Context    map[string]any
	Retryable  bool
}

// New creates a new structured error.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Newf creates a new structured error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with dispatch error context.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds a context key-value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Underlying != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Underlying.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsCode checks if an error carries a specific error code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*Error)
	if !ok {
		return false
	}
	return de.Code == code
}

// GetCode extracts the error code from an error. Unstructured errors map to
// the execution_error catch-all.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	de, ok := err.(*Error)
	if !ok {
		return ErrCodeExecutionError
	}
	return de.Code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*Error)
	if !ok {
		return false
	}
	return de.Retryable
}
