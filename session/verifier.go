package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultKeyCacheTTL = 15 * time.Minute

var (
	ErrMissingToken = errors.New("session: missing identity token")
	ErrMissingEmail = errors.New("session: token has no email claim")
)

// Verifier validates identity tokens issued by the external auth provider
// and turns them into sessions.
type Verifier struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewVerifier creates a verifier for RS256 tokens signed by keys from jwks.
func NewVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	return &Verifier{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultKeyCacheTTL,
		now:         time.Now,
	}
}

// NewSharedSecretVerifier creates a verifier for HS256 tokens, used for local
// development and tests.
func NewSharedSecretVerifier(secret []byte, audience, issuer string) *Verifier {
	if len(secret) == 0 {
		panic("session.NewSharedSecretVerifier: secret is empty")
	}
	return &Verifier{
		Audience:   audience,
		Issuer:     issuer,
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:        time.Now,
	}
}

// SignIn validates the identity token and starts a session for its email.
// The raw token becomes the session's bearer token.
func (v *Verifier) SignIn(idToken string) (*Session, error) {
	email, err := v.EmailFromToken(idToken)
	if err != nil {
		return nil, err
	}
	return New(email, idToken), nil
}

// EmailFromToken validates the token and returns its email claim.
func (v *Verifier) EmailFromToken(tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	var parsed *jwt.Token
	var err error
	if v.TestMode {
		parsed, err = v.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return v.TestSecret, nil
		})
	} else {
		parsed, err = v.parser.Parse(tokenStr, v.keyForToken)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := v.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	email, ok := claims["email"].(string)
	if !ok || strings.TrimSpace(email) == "" {
		return "", ErrMissingEmail
	}
	return strings.TrimSpace(email), nil
}

func (v *Verifier) keyForToken(token *jwt.Token) (any, error) {
	if v.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && v.keyCacheTTL > 0 {
		if cached, ok := v.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if v.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			v.keyCache.Delete(kid)
		}
	}

	key, err := v.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && v.keyCacheTTL > 0 {
		v.keyCache.Store(kid, cachedKey{key: key, expiresAt: v.now().Add(v.keyCacheTTL)})
	}
	return key, nil
}
