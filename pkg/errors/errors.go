// Package errors provides a structured error system for wsmount with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for wsmount operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Catalog Errors
	ErrCodeCatalogFetch       ErrorCode = "CATALOG_FETCH"
	ErrCodeCatalogUnavailable ErrorCode = "CATALOG_UNAVAILABLE"
	ErrCodeFolderGraphInvalid ErrorCode = "FOLDER_GRAPH_INVALID"
	ErrCodeProbeFailed        ErrorCode = "PROBE_FAILED"

	// Mount Errors
	ErrCodeMountAccessDenied   ErrorCode = "MOUNT_ACCESS_DENIED"
	ErrCodeMountTargetNotFound ErrorCode = "MOUNT_TARGET_NOT_FOUND"
	ErrCodeMountFailed         ErrorCode = "MOUNT_FAILED"
	ErrCodeMountMarkFailed     ErrorCode = "MOUNT_MARK_FAILED"
	ErrCodeUnmountBusy         ErrorCode = "UNMOUNT_BUSY"
	ErrCodeUnsupportedResource ErrorCode = "UNSUPPORTED_RESOURCE"

	// Filesystem Errors
	ErrCodeDirectoryCreate   ErrorCode = "DIRECTORY_CREATE"
	ErrCodeDirectoryDelete   ErrorCode = "DIRECTORY_DELETE"
	ErrCodeDirectoryNotEmpty ErrorCode = "DIRECTORY_NOT_EMPTY"
	ErrCodePathInvalid       ErrorCode = "PATH_INVALID"

	// Host Errors
	ErrCodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"
	ErrCodeCommandFailed       ErrorCode = "COMMAND_FAILED"
	ErrCodeCommandLaunch       ErrorCode = "COMMAND_LAUNCH"

	// Operation Errors
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCatalog       ErrorCategory = "catalog"
	CategoryMount         ErrorCategory = "mount"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryHost          ErrorCategory = "host"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// WSMountError represents a structured error with context and metadata.
type WSMountError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	// Fatal errors abort the whole pass; everything else is recorded per resource.
	Fatal          bool `json:"fatal"`
	UserActionable bool `json:"user_actionable"`
	Retryable      bool `json:"retryable"`
}

// Error implements the error interface.
func (e *WSMountError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *WSMountError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *WSMountError) Is(target error) bool {
	if t, ok := target.(*WSMountError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *WSMountError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Fatal {
		parts = append(parts, "Fatal=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("WSMountError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *WSMountError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new error with default values for the code.
func NewError(code ErrorCode, message string) *WSMountError {
	return &WSMountError{
		Code:           code,
		Category:       GetCategory(code),
		Message:        message,
		Timestamp:      time.Now(),
		Details:        make(map[string]interface{}),
		Context:        make(map[string]string),
		Fatal:          IsFatalByDefault(code),
		UserActionable: IsUserActionableByDefault(code),
		Retryable:      IsRetryableByDefault(code),
	}
}

// Newf is NewError with a format string.
func Newf(code ErrorCode, format string, args ...interface{}) *WSMountError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error with the given cause.
func Wrap(cause error, code ErrorCode, message string) *WSMountError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CATALOG_") || strings.HasPrefix(codeStr, "FOLDER_") ||
		strings.HasPrefix(codeStr, "PROBE_"):
		return CategoryCatalog
	case strings.HasPrefix(codeStr, "MOUNT_") || strings.HasPrefix(codeStr, "UNMOUNT_") ||
		strings.HasPrefix(codeStr, "UNSUPPORTED_RESOURCE"):
		return CategoryMount
	case strings.HasPrefix(codeStr, "DIRECTORY_") || strings.HasPrefix(codeStr, "PATH_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "UNSUPPORTED_PLATFORM") || strings.HasPrefix(codeStr, "COMMAND_"):
		return CategoryHost
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "RETRY_") ||
		strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsFatalByDefault reports whether an error aborts the whole mount or unmount pass.
func IsFatalByDefault(code ErrorCode) bool {
	fatalCodes := map[ErrorCode]bool{
		ErrCodeCatalogFetch:        true,
		ErrCodeUnsupportedPlatform: true,
		ErrCodeCommandFailed:       true,
		ErrCodeInvalidConfig:       true,
		ErrCodeConfigValidation:    true,
		ErrCodeConfigLoad:          true,
	}
	return fatalCodes[code]
}

// IsUserActionableByDefault determines if the user can fix the condition themselves.
func IsUserActionableByDefault(code ErrorCode) bool {
	actionable := map[ErrorCode]bool{
		ErrCodeUnmountBusy:         true,
		ErrCodeDirectoryNotEmpty:   true,
		ErrCodeUnsupportedPlatform: true,
		ErrCodeInvalidConfig:       true,
		ErrCodeConfigValidation:    true,
		ErrCodeMountAccessDenied:   true,
		ErrCodeMountTargetNotFound: true,
	}
	return actionable[code]
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeCatalogUnavailable: true,
		ErrCodeNetworkError:       true,
		ErrCodeInternalError:      true,
	}
	return retryableCodes[code]
}

// WithContext adds contextual information to an error
func (e *WSMountError) WithContext(key, value string) *WSMountError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithPath records the filesystem path the error is about.
func (e *WSMountError) WithPath(path string) *WSMountError {
	return e.WithContext("path", path)
}

// WithDetail adds detailed information to an error
func (e *WSMountError) WithDetail(key string, value interface{}) *WSMountError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *WSMountError) WithComponent(component string) *WSMountError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *WSMountError) WithOperation(operation string) *WSMountError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *WSMountError) WithCause(cause error) *WSMountError {
	e.Cause = cause
	return e
}

// Path returns the path recorded with WithPath, if any.
func (e *WSMountError) Path() string {
	return e.Context["path"]
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *WSMountError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeUnmountBusy: "Make sure that the mount point is not being used by other processes " +
			"(close shells and editors inside it) and rerun the command.",
		ErrCodeDirectoryNotEmpty:   "Please move the files in this directory and rerun the command.",
		ErrCodeUnsupportedPlatform: "Mounting workspace resources is supported on Linux and macOS only.",
		ErrCodeMountAccessDenied:   "Ask a workspace owner to grant you read access to the bucket.",
		ErrCodeMountTargetNotFound: "The bucket referenced by this resource no longer exists. " +
			"Update or remove the resource.",
		ErrCodeMountFailed: "Check that the FUSE mount utility is installed and that your " +
			"application default credentials are configured.",
		ErrCodeCatalogFetch: "Check your network connection and that you are logged in to the workspace.",
		ErrCodeFolderGraphInvalid: "The workspace folder hierarchy is inconsistent. " +
			"Move the affected folder under an existing parent.",
		ErrCodeInvalidConfig: "Check your configuration file syntax and required parameters.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}

// DetailedDiagnostic returns a comprehensive diagnostic message
func (e *WSMountError) DetailedDiagnostic() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Error: %s", e.Message))
	parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
	parts = append(parts, fmt.Sprintf("Category: %s", e.Category))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component: %s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Operation))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, "\nContext:")
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, e.Context[k]))
		}
	}

	parts = append(parts, "\nRecommendation:")
	parts = append(parts, "  "+e.GetRecommendation())

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("\nUnderlying cause: %s", e.Cause.Error()))
	}

	return strings.Join(parts, "\n")
}

// HasCode reports whether err, or anything it wraps, is a WSMountError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &WSMountError{Code: code})
}

// IsFatal reports whether err, or anything it wraps, is a fatal WSMountError.
func IsFatal(err error) bool {
	var e *WSMountError
	if stderrors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// IsUserActionable reports whether err carries a user-actionable WSMountError.
func IsUserActionable(err error) bool {
	var e *WSMountError
	if stderrors.As(err, &e) {
		return e.UserActionable
	}
	return false
}
