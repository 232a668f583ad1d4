package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a Lichen error code.
type ErrorCode string

const (
	ErrAmbiguousAddressing ErrorCode = "AMBIGUOUS_ADDRESSING" // 400
	ErrAmbiguousInput      ErrorCode = "AMBIGUOUS_INPUT"      // 400
	ErrAmbiguousOutput     ErrorCode = "AMBIGUOUS_OUTPUT"     // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"       // 404
	ErrNameAlreadyExists   ErrorCode = "NAME_ALREADY_EXISTS"  // 409
	ErrUnknownType         ErrorCode = "UNKNOWN_TYPE"         // 422
	ErrMalformedEnvelope   ErrorCode = "MALFORMED_ENVELOPE"   // 422
	ErrNotReconstructable  ErrorCode = "NOT_RECONSTRUCTABLE"  // 422
	ErrMissingSecret       ErrorCode = "MISSING_SECRET"       // 422
	ErrCancelled           ErrorCode = "CANCELLED"            // 499
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// LichenError represents a structured error with code, status, and details.
type LichenError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LichenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAmbiguousAddressing creates a 400 error for when both ID and name are provided.
func NewAmbiguousAddressing() *LichenError {
	return &LichenError{
		Code:    ErrAmbiguousAddressing,
		Status:  400,
		Message: "cannot specify both id and name; use one addressing mode",
	}
}

// NewAmbiguousInput creates a 400 error when the prompt input key of a turn
// cannot be identified. candidates lists the keys that were considered.
func NewAmbiguousInput(msg string, candidates []string) *LichenError {
	return &LichenError{
		Code:    ErrAmbiguousInput,
		Status:  400,
		Message: msg,
		Details: map[string]any{"candidates": candidates},
	}
}

// NewAmbiguousOutput creates a 400 error when the output key of a turn
// cannot be identified.
func NewAmbiguousOutput(msg string, keys []string) *LichenError {
	return &LichenError{
		Code:    ErrAmbiguousOutput,
		Status:  400,
		Message: msg,
		Details: map[string]any{"keys": keys},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LichenError {
	return &LichenError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a session cannot be found.
func NewNotFound(identifier string) *LichenError {
	return &LichenError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("session not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import or restore file.
func NewFileNotFound(path string) *LichenError {
	return &LichenError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNameAlreadyExists creates a 409 error for name collisions.
func NewNameAlreadyExists(workspace, name string) *LichenError {
	return &LichenError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("session with name %q already exists in workspace %q", name, workspace),
		Details: map[string]any{"workspace": workspace, "name": name},
	}
}

// NewUnknownType creates a 422 error for a type path with no registered constructor.
func NewUnknownType(path []string) *LichenError {
	return &LichenError{
		Code:    ErrUnknownType,
		Status:  422,
		Message: fmt.Sprintf("no constructor registered for %s", strings.Join(path, ".")),
		Details: map[string]any{"type_path": path},
	}
}

// NewMalformedEnvelope creates a 422 error naming the offending field.
func NewMalformedEnvelope(field, reason string) *LichenError {
	msg := reason
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, reason)
	}
	return &LichenError{
		Code:    ErrMalformedEnvelope,
		Status:  422,
		Message: msg,
		Details: map[string]any{"field": field, "reason": reason},
	}
}

// Nest prefixes the field path of a MALFORMED_ENVELOPE error with parent,
// so errors raised deep inside a nested envelope name their full location.
// Other errors are returned unchanged.
func Nest(parent string, err error) error {
	lErr, ok := As(err)
	if !ok || lErr.Code != ErrMalformedEnvelope || parent == "" {
		return err
	}
	field, _ := lErr.Details["field"].(string)
	reason, _ := lErr.Details["reason"].(string)
	switch {
	case field == "":
		field = parent
	case strings.HasPrefix(field, "["):
		field = parent + field
	default:
		field = parent + "." + field
	}
	return NewMalformedEnvelope(field, reason)
}

// NewNotReconstructable creates a 422 error for decoding an opaque envelope.
func NewNotReconstructable(path []string, repr string) *LichenError {
	return &LichenError{
		Code:    ErrNotReconstructable,
		Status:  422,
		Message: fmt.Sprintf("%s was encoded for display only and cannot be reconstructed", strings.Join(path, ".")),
		Details: map[string]any{"type_path": path, "repr": repr},
	}
}

// NewMissingSecret creates a 422 error when a secret envelope has no value to resolve to.
func NewMissingSecret(name string) *LichenError {
	return &LichenError{
		Code:    ErrMissingSecret,
		Status:  422,
		Message: fmt.Sprintf("secret %s was not provided", name),
		Details: map[string]any{"secret": name},
	}
}

// NewCancelled creates a 499 error for operations stopped by context cancellation.
func NewCancelled(op string) *LichenError {
	return &LichenError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *LichenError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &LichenError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error, or any error it wraps, is a LichenError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LichenError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}

// As returns the LichenError in err's chain, if any.
func As(err error) (*LichenError, bool) {
	var lErr *LichenError
	ok := stderrors.As(err, &lErr)
	return lErr, ok
}
