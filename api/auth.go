package api

import (
	"errors"
	"strings"

	"taskboard/session"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
	errOwnerMismatch        = errors.New("token does not belong to task owner")
)

const bearerPrefix = "Bearer "

// Auth resolves the caller's email from a bearer identity token.
type Auth struct {
	verifier *session.Verifier
}

func NewAuth(v *session.Verifier) *Auth {
	if v == nil {
		panic("api.NewAuth: verifier is nil")
	}
	return &Auth{verifier: v}
}

// EmailFromAuthHeader validates the bearer token in h and returns its email.
func (a *Auth) EmailFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.verifier.EmailFromToken(token)
}

func bearerTokenFromString(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.HasPrefix(trimmed, bearerPrefix) {
		return "", errBadAuthorization
	}
	token := trimmed[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
