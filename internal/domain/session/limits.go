package session

import "time"

// Lockout bounds failed operator logins per session.
type Lockout struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultLockout allows three failures per five minutes.
func DefaultLockout() Lockout {
	return Lockout{MaxAttempts: 3, Window: 5 * time.Minute}
}

// RegistrationLimit bounds successful registrations per session.
type RegistrationLimit struct {
	Max    int
	Window time.Duration
}

// DefaultRegistrationLimit allows three registrations per hour.
func DefaultRegistrationLimit() RegistrationLimit {
	return RegistrationLimit{Max: 3, Window: time.Hour}
}

// LockedOut reports whether further login attempts are refused, and for how long.
// PRE: none
// POST: An elapsed window resets the attempt counter
func (s *Session) LockedOut(now time.Time, l Lockout) (bool, time.Duration) {
	if s.LoginAttempts == 0 {
		return false, 0
	}
	elapsed := now.Sub(s.AttemptWindowStart)
	if elapsed >= l.Window {
		s.LoginAttempts = 0
		s.AttemptWindowStart = time.Time{}
		return false, 0
	}
	if s.LoginAttempts >= l.MaxAttempts {
		return true, l.Window - elapsed
	}
	return false, 0
}

// RecordFailedLogin counts one failed attempt.
// POST: LoginAttempts incremented by exactly one; the window starts at the first attempt
func (s *Session) RecordFailedLogin(now time.Time) {
	if s.LoginAttempts == 0 {
		s.AttemptWindowStart = now
	}
	s.LoginAttempts++
}

// RemainingAttempts is how many failures are left before lockout.
func (s *Session) RemainingAttempts(l Lockout) int {
	if n := l.MaxAttempts - s.LoginAttempts; n > 0 {
		return n
	}
	return 0
}

// RegistrationAllowed reports whether another registration fits the window.
// PRE: none
// POST: An elapsed window resets the counter
func (s *Session) RegistrationAllowed(now time.Time, l RegistrationLimit) (bool, time.Duration) {
	if s.Registrations == 0 {
		return true, 0
	}
	elapsed := now.Sub(s.RegistrationWindowStart)
	if elapsed >= l.Window {
		s.Registrations = 0
		s.RegistrationWindowStart = time.Time{}
		return true, 0
	}
	if s.Registrations >= l.Max {
		return false, l.Window - elapsed
	}
	return true, 0
}

// RecordRegistration counts one successful registration.
// POST: The window is anchored at the first registration it contains
func (s *Session) RecordRegistration(now time.Time) {
	if s.Registrations == 0 {
		s.RegistrationWindowStart = now
	}
	s.Registrations++
}
