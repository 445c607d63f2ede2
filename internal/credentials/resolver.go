package credentials

import (
	"errors"
	"fmt"
	"net/url"

	"cookbooksync/internal/utils"
)

// Source indicates where a token was found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceNone    Source = "none"
)

// Credentials is a resolved API token
type Credentials struct {
	UID    string
	Token  string
	Source Source
}

// Resolver looks up tokens in priority order: keyring, then environment
type Resolver struct {
	host      string
	available func() bool
	lookup    func(host, uid string) (string, error)
}

// NewResolver creates a resolver scoped to the sync server at baseURL
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		host:      HostOf(baseURL),
		available: IsAvailable,
		lookup:    Get,
	}
}

// HostOf returns the host part of a base URL, or "" when it cannot be parsed
func HostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Host is the keyring scope of this resolver
func (r *Resolver) Host() string {
	return r.host
}

// Resolve finds the token of uid. An empty uid only consults the environment.
func (r *Resolver) Resolve(uid string) (*Credentials, error) {
	if uid != "" && r.available() {
		token, err := r.lookup(r.host, uid)
		if err == nil {
			return &Credentials{UID: uid, Token: token, Source: SourceKeyring}, nil
		}
		if !errors.Is(err, ErrTokenNotFound) {
			utils.Debugf("Keyring lookup for %s failed: %v", uid, err)
		}
	}

	if token := GetToken(); token != "" {
		return &Credentials{UID: uid, Token: token, Source: SourceEnv}, nil
	}

	return nil, fmt.Errorf("no token for user %q (tried: keyring, %s): %w", uid, ENV_API_TOKEN, utils.ErrTokenNotFound(uid))
}

// Token returns the token of uid or "" when none is configured
func (r *Resolver) Token(uid string) string {
	creds, err := r.Resolve(uid)
	if err != nil {
		return ""
	}
	return creds.Token
}
