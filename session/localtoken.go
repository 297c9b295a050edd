package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SignLocalToken returns an HS256 identity token for email, accepted by a
// verifier built with NewSharedSecretVerifier on the same secret. It stands
// in for the identity provider during local development.
func SignLocalToken(secret []byte, email, audience string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("session: shared secret must be set")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrMissingEmail
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   email,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
