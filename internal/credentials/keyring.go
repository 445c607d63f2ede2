package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringServicePrefix is the prefix for all cookbooksync keyring entries
	KeyringServicePrefix = "cookbooksync"
)

// ErrTokenNotFound is returned when no token is stored for a user
var ErrTokenNotFound = errors.New("token not found")

// getServiceName returns the keyring service name for a sync server host.
// Tokens are scoped per server so a staging login never leaks into production.
func getServiceName(host string) string {
	if host == "" {
		return KeyringServicePrefix
	}
	return fmt.Sprintf("%s-%s", KeyringServicePrefix, host)
}

// Set stores the API token of uid in the OS keyring
func Set(host, uid, token string) error {
	if uid == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := keyring.Set(getServiceName(host), uid, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Get retrieves the API token of uid from the OS keyring
func Get(host, uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	token, err := keyring.Get(getServiceName(host), uid)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w in keyring for user %q", ErrTokenNotFound, uid)
		}
		return "", fmt.Errorf("failed to retrieve token from keyring: %w", err)
	}
	return token, nil
}

// Delete removes the API token of uid from the OS keyring
func Delete(host, uid string) error {
	if uid == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if err := keyring.Delete(getServiceName(host), uid); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w in keyring for user %q", ErrTokenNotFound, uid)
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible
func IsAvailable() bool {
	// A working keyring answers ErrNotFound for an entry that was never written
	_, err := keyring.Get(KeyringServicePrefix+"-keyring-test", "test")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
