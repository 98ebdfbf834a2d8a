package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Session holds the per-browser state: operator authentication, the
// anti-forgery token, login attempt tracking and the registration counter.
type Session struct {
	ID           string
	CSRFToken    string
	WorkshopCode string
	WorkshopName string
	LoggedInAt   time.Time
	LastActivity time.Time

	LoginAttempts      int
	AttemptWindowStart time.Time

	Registrations           int
	RegistrationWindowStart time.Time
}

// New returns an empty session with a fresh id.
// PRE: none
// POST: ID is a 64-char hex string
func New() (Session, error) {
	id, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id}, nil
}

// IsAuthenticated reports whether an operator is logged in.
// INVARIANT: Session fields are not mutated
func (s *Session) IsAuthenticated() bool {
	return s.WorkshopCode != ""
}

// IsExpired reports whether the operator has been idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	if !s.IsAuthenticated() {
		return false
	}
	return now.Sub(s.LastActivity) > timeout
}

// Touch records operator activity.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// Authenticate stores the operator identity after a successful login.
// POST: Attempt counter reset; login and activity timestamps set
func (s *Session) Authenticate(code, name string, now time.Time) {
	s.WorkshopCode = code
	s.WorkshopName = name
	s.LoggedInAt = now
	s.LastActivity = now
	s.LoginAttempts = 0
	s.AttemptWindowStart = time.Time{}
}

// ClearAuth drops the operator identity but keeps anonymous state.
func (s *Session) ClearAuth() {
	s.WorkshopCode = ""
	s.WorkshopName = ""
	s.LoggedInAt = time.Time{}
	s.LastActivity = time.Time{}
}

// EnsureToken issues an anti-forgery token if the session has none.
// POST: CSRFToken is non-empty
func (s *Session) EnsureToken() error {
	if s.CSRFToken != "" {
		return nil
	}
	return s.RotateToken()
}

// RotateToken replaces the anti-forgery token.
func (s *Session) RotateToken() error {
	tok, err := NewToken()
	if err != nil {
		return err
	}
	s.CSRFToken = tok
	return nil
}

// TokenMatches compares a submitted token in constant time.
func (s *Session) TokenMatches(submitted string) bool {
	if s.CSRFToken == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(submitted)) == 1
}

// NewToken returns 32 random bytes hex-encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
