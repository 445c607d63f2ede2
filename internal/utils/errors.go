package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// Common error constructors with suggestions

// ErrNotSignedIn creates an error when a command needs a signed-in user
func ErrNotSignedIn() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no user is signed in"),
		Suggestion: "Sign in with 'cookbooksync login <uid>' first",
	}
}

// ErrEntityNotFound creates an error when a local document does not exist
func ErrEntityNotFound(entity, id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s '%s' not found", entity, id),
		Suggestion: fmt.Sprintf("Run 'cookbooksync %s ls' to see stored ids", strings.TrimSuffix(entity, "s")),
	}
}

// ErrRemoteNotConfigured creates an error when no sync server is configured
func ErrRemoteNotConfigured() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote sync server is not configured"),
		Suggestion: "Set 'remote.base_url' in ~/.config/cookbooksync/config.json or export COOKBOOKSYNC_BASE_URL",
	}
}

// ErrRemoteOffline creates an error when the sync server cannot be reached
func ErrRemoteOffline(reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and the configured base URL"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the sync server is running and accessible"
	} else if strings.Contains(reason, "timeout") || strings.Contains(reason, "deadline") {
		suggestion = "The server may be slow or unreachable. Try again later"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("sync server is offline: %s", reason),
		Suggestion: suggestion,
	}
}

// ErrTokenNotFound creates an error when no API token is stored
func ErrTokenNotFound(uid string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("API token not found for user %s", uid),
		Suggestion: "Store one with 'cookbooksync credentials set --prompt' or export COOKBOOKSYNC_API_TOKEN",
	}
}

// ErrKeyringUnavailable creates an error when the OS keyring cannot be used
func ErrKeyringUnavailable(err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("system keyring is not available: %w", err),
		Suggestion: "Export COOKBOOKSYNC_API_TOKEN instead of storing the token in the keyring",
	}
}

// ErrAuthenticationFailed creates an error when the server rejects the token
func ErrAuthenticationFailed(cause error) error {
	err := fmt.Errorf("authentication failed")
	if cause != nil {
		err = fmt.Errorf("authentication failed: %w", cause)
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Check your token with 'cookbooksync credentials get' and update it if needed",
	}
}

// ErrConfigFileNotFound creates an error when config file is not found
func ErrConfigFileNotFound(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("config file not found at %s", path),
		Suggestion: "Run 'cookbooksync config init' to create a default configuration file",
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/cookbooksync/config.json and fix the '%s' field", field),
	}
}

// ErrInvalidFieldValue creates an error for a rejected command-line value
func ErrInvalidFieldValue(field, value string, allowed []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid %s: %s", field, value),
		Suggestion: fmt.Sprintf("Valid values: %s", strings.Join(allowed, ", ")),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
