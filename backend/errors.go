package backend

import "fmt"

// BackendError represents a failed call against the remote sync backend.
// StatusCode is 0 when the request never produced an HTTP response
// (connection refused, DNS failure, timeout); Err then carries the cause.
type BackendError struct {
	Operation  string // e.g., "Pull", "Push"
	StatusCode int    // HTTP status code (0 if not an HTTP error)
	Message    string // Human-readable error message
	Entity     string // Optional: entity type ("cookbooks", "recipes", "preferences")
	UID        string // Optional: user the request was made for
	Body       string // Optional: response body for debugging
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	prefix := e.Operation
	if e.Entity != "" {
		prefix = e.Operation + " " + e.Entity
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", prefix, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error wrapping
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether the request failed before any HTTP status was received.
func (e *BackendError) IsNetwork() bool {
	return e.StatusCode == 0
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *BackendError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *BackendError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if the error is a 5xx server error
func (e *BackendError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewBackendError creates a new BackendError
func NewBackendError(operation string, statusCode int, message string) *BackendError {
	return &BackendError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithEntity adds the entity type to the error for context
func (e *BackendError) WithEntity(entity string) *BackendError {
	e.Entity = entity
	return e
}

// WithUID adds the user id to the error for context
func (e *BackendError) WithUID(uid string) *BackendError {
	e.UID = uid
	return e
}

// WithBody adds the response body to the error for debugging
func (e *BackendError) WithBody(body string) *BackendError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *BackendError) WithError(err error) *BackendError {
	e.Err = err
	return e
}
