// Package session holds the authentication state shared by the remote client
// and the cart reconciler.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session carries the bearer token of one storefront user. A Session with no
// token, or with an expired one, routes cart operations to the local store.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// New returns an unauthenticated session.
func New() *Session {
	return &Session{now: time.Now}
}

// NewWithToken returns a session initialised with token.
func NewWithToken(token string) *Session {
	s := New()
	s.Init(token)
	return s
}

// Init stores token. If the token is a JWT with an exp claim, the session
// stops reporting itself as authenticated once that time passes. The token
// signature is not checked here; the backend remains the authority.
func (s *Session) Init(token string) {
	var expiresAt time.Time
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
}

// Clear drops the token.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// Token returns the bearer token, or "" when the session is not authenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return ""
	}
	return s.token
}

// Authenticated reports whether a usable token is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

// ExpiresAt returns the token expiry, or the zero time when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) validLocked() bool {
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}
