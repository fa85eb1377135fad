// Package auth resolves the optional bearer token shared by the board client and
// the mock backend.
package auth

import (
	"errors"
	"os"
	"strings"
)

// EnvVar is the environment variable holding the API token.
const EnvVar = "KANBAN_TOKEN"

// ErrNoToken indicates that no provider produced a token.
var ErrNoToken = errors.New("no API token configured")

// TokenProvider defines the interface for obtaining an API token.
type TokenProvider interface {
	GetToken() (string, error)
}

// StaticProvider returns a fixed token, typically from a CLI flag.
type StaticProvider struct {
	Token string
}

// GetToken returns the configured token or ErrNoToken when it is blank.
func (s StaticProvider) GetToken() (string, error) {
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// EnvProvider obtains tokens from the KANBAN_TOKEN environment variable.
type EnvProvider struct{}

// GetToken reads KANBAN_TOKEN. Returns ErrNoToken if the variable is unset or empty.
func (e EnvProvider) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(EnvVar))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []TokenProvider

// GetToken returns the first non-empty token, or ErrNoToken.
func (c Chain) GetToken() (string, error) {
	for _, p := range c {
		token, err := p.GetToken()
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// GetToken resolves a token from the flag value first, then the environment.
// An empty result with ErrNoToken means the API is used anonymously.
func GetToken(flagValue string) (string, error) {
	return Chain{StaticProvider{Token: flagValue}, EnvProvider{}}.GetToken()
}

// BearerMatches reports whether an Authorization header carries token.
func BearerMatches(header, token string) bool {
	parts := strings.SplitN(header, " ", 2)
	return len(parts) == 2 && parts[0] == "Bearer" && parts[1] == token
}
