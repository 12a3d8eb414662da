package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// NewVerifier generates a PKCE code verifier.
func NewVerifier() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ChallengeS256 derives the S256 code challenge from a verifier.
func ChallengeS256(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
