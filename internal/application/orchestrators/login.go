package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"workshopreg/internal/domain/session"
	"workshopreg/internal/domain/workshop"
)

var (
	ErrInvalidToken       = errors.New("invalid security token, reload the page and try again")
	ErrInvalidWorkshop    = errors.New("please choose a valid workshop")
	ErrInvalidCredentials = errors.New("invalid workshop or password")
)

// LockedOutError reports a session barred from further login attempts.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return "too many failed attempts, try again in " + HumanizeWait(e.Remaining)
}

// WorkshopVerifier checks operator credentials.
type WorkshopVerifier interface {
	Verify(code, password string) (workshop.Workshop, error)
}

// LoginSessions locks, updates and rotates stored sessions.
type LoginSessions interface {
	SessionUpdater
	Rotate(s session.Session) (session.Session, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	WorkshopCode string
	Password     string
	Token        string
	SessionID    string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Workshops WorkshopVerifier
	Sessions  LoginSessions
	Lockout   session.Lockout
	Now       func() time.Time
}

// ExecuteLogin authenticates an operator for one workshop.
// PRE: input.SessionID names a stored session
// POST: Returns the stored session; on success it has a new ID and token
// INVARIANT: Missing fields never count as an attempt; each bad credential counts exactly once
// INVARIANT: Attempts on one session are checked and counted under its lock
func ExecuteLogin(_ context.Context, input LoginInput, deps LoginDeps) (session.Session, error) {
	return deps.Sessions.Update(input.SessionID, func(sess *session.Session) error {
		return attemptLogin(sess, input, deps)
	})
}

func attemptLogin(sess *session.Session, input LoginInput, deps LoginDeps) error {
	now := deps.Now()

	if !sess.TokenMatches(input.Token) {
		slog.Warn("auth_event", "event", "login_rejected", "reason", "bad_token")
		return ErrInvalidToken
	}

	if locked, remaining := sess.LockedOut(now, deps.Lockout); locked {
		slog.Info("auth_event", "event", "login_blocked", "reason", "locked", "remaining_s", ceilSeconds(remaining))
		return &LockedOutError{Remaining: remaining}
	}

	code := strings.TrimSpace(input.WorkshopCode)
	if code == "" {
		return ErrInvalidWorkshop
	}
	if input.Password == "" {
		return ErrInvalidCredentials
	}

	w, err := deps.Workshops.Verify(code, input.Password)
	if err != nil {
		sess.RecordFailedLogin(now)
		reason := "wrong_password"
		if errors.Is(err, workshop.ErrUnknownWorkshop) {
			reason = "unknown_workshop"
		}
		slog.Info("auth_event", "event", "login_failed", "workshop", code, "reason", reason, "attempts", sess.LoginAttempts)
		return ErrInvalidCredentials
	}

	next := *sess
	next.Authenticate(w.Code, w.Name, now)
	if err := next.RotateToken(); err != nil {
		return err
	}
	rotated, err := deps.Sessions.Rotate(next)
	if err != nil {
		return err
	}
	*sess = rotated

	slog.Info("auth_event", "event", "login_success", "workshop", w.Code)
	return nil
}

// SessionDeleter destroys sessions.
type SessionDeleter interface {
	Delete(id string)
}

// ExecuteLogout destroys all state of a session.
// POST: The session id no longer resolves
func ExecuteLogout(_ context.Context, sess session.Session, sessions SessionDeleter) {
	if sess.ID == "" {
		return
	}
	sessions.Delete(sess.ID)
	if sess.IsAuthenticated() {
		slog.Info("auth_event", "event", "logout", "workshop", sess.WorkshopCode)
	}
}
