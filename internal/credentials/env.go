package credentials

import (
	"os"
	"strings"
)

// ENV_API_TOKEN holds a token used when the keyring has none
const ENV_API_TOKEN = "COOKBOOKSYNC_API_TOKEN"

// GetToken retrieves the API token from the environment
func GetToken() string {
	return strings.TrimSpace(os.Getenv(ENV_API_TOKEN))
}

// HasToken checks if a token is set in the environment
func HasToken() bool {
	return GetToken() != ""
}
