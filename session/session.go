// Package session holds the signed-in user's identity. A Session is created
// at sign-in and passed explicitly to the board and drag controller; signing
// out ends it, after which late store responses are discarded.
package session

import (
	"strings"
	"sync"
)

// Session is the authenticated context for a single signed-in user.
type Session struct {
	email string
	token string

	mu    sync.Mutex
	done  chan struct{}
	ended bool
}

// New creates an active session for the given owner email and bearer token.
// The token may be empty when the task store does not require one.
func New(email, token string) *Session {
	return &Session{
		email: strings.TrimSpace(email),
		token: token,
		done:  make(chan struct{}),
	}
}

// OwnerEmail returns the signed-in user's email, or "" once the session ended.
func (s *Session) OwnerEmail() string {
	if s == nil || !s.Active() {
		return ""
	}
	return s.email
}

// Token returns the bearer token presented to the task store.
func (s *Session) Token() string {
	if s == nil || !s.Active() {
		return ""
	}
	return s.token
}

func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SignOut ends the session. It is safe to call more than once.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.done)
}
