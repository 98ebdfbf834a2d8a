package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"workshopreg/internal/domain/session"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionCookieName names the cookie carrying the session id.
const SessionCookieName = "workshop_session"

// SessionStore holds sessions keyed by id.
type SessionStore interface {
	Get(id string) (session.Session, bool)
	Save(s session.Session) error
	Delete(id string)
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Secure bool
	MaxAge int // seconds; 0 makes a browser-session cookie
}

// Sessions returns middleware that resolves the browser session into the request context.
// A request without a known session id gets a fresh session and cookie.
// POST: Downstream handlers always find a session with an anti-forgery token
func Sessions(store SessionStore, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess session.Session
			found := false
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				sess, found = store.Get(cookie.Value)
			}
			if !found {
				fresh, err := session.New()
				if err != nil {
					slog.Error("internal_error", "error", err.Error())
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				sess = fresh
			}
			if sess.CSRFToken == "" || !found {
				if err := sess.EnsureToken(); err != nil {
					slog.Error("internal_error", "error", err.Error())
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if err := store.Save(sess); err != nil {
					slog.Error("internal_error", "error", err.Error())
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if !found {
					SetSessionCookie(w, sess.ID, opts)
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), &sess)))
		})
	}
}

// SessionFromContext returns the request's session.
// Handlers mutate it in place and persist it through the store.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	return sess, ok && sess != nil
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// OperatorGuard enforces operator authentication and the inactivity timeout.
type OperatorGuard struct {
	Store   SessionStore
	Timeout time.Duration
	Cookie  CookieOptions
	Now     func() time.Time
}

// RequireOperator redirects anonymous or idle sessions to the login page.
func (g OperatorGuard) RequireOperator(next http.Handler) http.Handler {
	return g.guard(next, func(w http.ResponseWriter, r *http.Request, expired bool) {
		target := "/admin/login"
		if expired {
			target += "?expired=1"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

// RequireOperatorAPI answers anonymous or idle sessions with a JSON 401.
func (g OperatorGuard) RequireOperatorAPI(next http.Handler) http.Handler {
	return g.guard(next, func(w http.ResponseWriter, _ *http.Request, expired bool) {
		msg := "Unauthorized"
		if expired {
			msg = "Session expired, please log in again"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
	})
}

// guard runs deny for anonymous or expired sessions, otherwise refreshes activity.
// POST: An expired session is destroyed before deny runs
func (g OperatorGuard) guard(next http.Handler, deny func(http.ResponseWriter, *http.Request, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || !sess.IsAuthenticated() {
			deny(w, r, false)
			return
		}
		now := g.Now()
		if sess.IsExpired(now, g.Timeout) {
			slog.Info("auth_event", "event", "session_expired", "workshop", sess.WorkshopCode)
			g.Store.Delete(sess.ID)
			ClearSessionCookie(w, g.Cookie)
			deny(w, r, true)
			return
		}
		sess.Touch(now)
		if err := g.Store.Save(*sess); err != nil {
			slog.Error("internal_error", "error", err.Error())
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, id string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   opts.MaxAge,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
