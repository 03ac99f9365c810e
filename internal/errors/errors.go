package errors

import "fmt"

// ErrorCode represents a Diver error code.
type ErrorCode string

const (
	// Link protocol errors. All are terminal for the single parse/verify/resolve
	// call that produced them and indicate a malformed or tampered link.
	ErrInvalidPath      ErrorCode = "INVALID_PATH"      // 400
	ErrInvalidVersion   ErrorCode = "INVALID_VERSION"   // 400
	ErrMissingSignature ErrorCode = "MISSING_SIGNATURE" // 400
	ErrInvalidSignature ErrorCode = "INVALID_SIGNATURE" // 403
	ErrInvalidPayload   ErrorCode = "INVALID_PAYLOAD"   // 422

	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrQueueIO        ErrorCode = "QUEUE_IO"        // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// DiverError represents a structured error with code, status, and details.
type DiverError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *DiverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidPath creates a 400 error for a URL whose path is not /w/<id>.
func NewInvalidPath(url string) *DiverError {
	return &DiverError{
		Code:    ErrInvalidPath,
		Status:  400,
		Message: fmt.Sprintf("not a wrapped link: %s", url),
		Details: map[string]any{"url": url},
	}
}

// NewInvalidVersion creates a 400 error for a missing or malformed version parameter.
func NewInvalidVersion(raw string) *DiverError {
	return &DiverError{
		Code:    ErrInvalidVersion,
		Status:  400,
		Message: fmt.Sprintf("missing or malformed link version: %q", raw),
	}
}

// NewMissingSignature creates a 400 error for a link with no sig parameter.
func NewMissingSignature() *DiverError {
	return &DiverError{
		Code:    ErrMissingSignature,
		Status:  400,
		Message: "wrapped link carries no signature",
	}
}

// NewInvalidSignature creates a 403 error for a signature mismatch.
func NewInvalidSignature(id string) *DiverError {
	return &DiverError{
		Code:    ErrInvalidSignature,
		Status:  403,
		Message: fmt.Sprintf("signature verification failed for link %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewInvalidPayload creates a 422 error for an undecodable embedded payload.
func NewInvalidPayload(err error) *DiverError {
	msg := "embedded payload could not be decoded"
	if err != nil {
		msg = fmt.Sprintf("embedded payload could not be decoded: %v", err)
	}
	return &DiverError{
		Code:    ErrInvalidPayload,
		Status:  422,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *DiverError {
	return &DiverError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when an item cannot be found.
func NewNotFound(identifier string) *DiverError {
	return &DiverError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("item not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewQueueIO creates a 500 error for queue read/write/delete failures.
func NewQueueIO(op string, err error) *DiverError {
	return &DiverError{
		Code:    ErrQueueIO,
		Status:  500,
		Message: fmt.Sprintf("queue %s failed: %v", op, err),
		Details: map[string]any{"op": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *DiverError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &DiverError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a DiverError with the given code.
func Is(err error, code ErrorCode) bool {
	if dErr, ok := err.(*DiverError); ok {
		return dErr.Code == code
	}
	return false
}
