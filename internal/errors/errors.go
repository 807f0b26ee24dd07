package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Pre-flight validation of a preprocessing submission
	CodeNoDatasets          = "NO_DATASETS"
	CodeMissingTargetColumn = "MISSING_TARGET_COLUMN"
	CodeEmptyScalingSubset  = "EMPTY_SCALING_SUBSET"
	CodeEmptyEncodingSubset = "EMPTY_ENCODING_SUBSET"

	// Submission
	CodeOrchestration        = "ORCHESTRATION_ERROR"
	CodeSubmissionInProgress = "SUBMISSION_IN_PROGRESS"
)

// Sentinels for errors.Is. Returned errors carry the same code and the
// operator-facing message.
var (
	ErrNoDatasets           = New(CodeNoDatasets, "Please upload files first.")
	ErrMissingTargetColumn  = New(CodeMissingTargetColumn, "Please select a target column for target encoding.")
	ErrEmptyScalingSubset   = New(CodeEmptyScalingSubset, "Please select at least one column for scaling or disable scaling.")
	ErrEmptyEncodingSubset  = New(CodeEmptyEncodingSubset, "Please select at least one column for encoding.")
	ErrOrchestration        = New(CodeOrchestration, "Preprocessing failed.")
	ErrSubmissionInProgress = New(CodeSubmissionInProgress, "A preprocessing submission is already running.")
)

// IsValidation reports whether err is one of the pre-flight validation errors.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case CodeNoDatasets, CodeMissingTargetColumn, CodeEmptyScalingSubset, CodeEmptyEncodingSubset:
		return true
	}
	return false
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// Orchestration builds the single user-facing error of a failed submission.
// detail is the most specific message available.
func Orchestration(detail string, cause error) *AppError {
	return &AppError{
		Code:    CodeOrchestration,
		Message: fmt.Sprintf("Preprocessing failed: %s.", detail),
		Cause:   cause,
	}
}

// ExternalServiceError wraps a failure reported by a collaborator service
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

// Message returns the operator-facing message of err: the outermost
// AppError's Message, or err.Error() for other errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
