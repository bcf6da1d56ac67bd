package link

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// stateTokenBytes is the entropy of a state token. The token doubles as a
// CSRF binding for the OAuth callback, so it must be unguessable.
const stateTokenBytes = 32

// NewStateToken returns a URL-safe random token with 256 bits of entropy.
func NewStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("link: generating state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
