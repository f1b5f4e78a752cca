package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Tokens derives the capability token admitting requests past the password
// wall. The token is a pure function of the server secret and the credential
// hash, so rotating either input invalidates every outstanding cookie at once.
type Tokens struct {
	secret string
	hash   string
}

// NewTokens binds a token source to the current server secret and credential hash.
func NewTokens(secret, credentialHash string) Tokens {
	return Tokens{secret: secret, hash: credentialHash}
}

// Token returns the hex-encoded sha256 digest of secret+hash. Stable across
// restarts as long as the inputs are unchanged.
func (t Tokens) Token() string {
	sum := sha256.Sum256([]byte(t.secret + t.hash))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether a presented cookie value equals the derived token.
// The comparison is constant time.
func (t Tokens) Valid(candidate string) bool {
	return candidate != "" && hmac.Equal([]byte(candidate), []byte(t.Token()))
}
