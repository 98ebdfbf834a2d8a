package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"workshopreg/internal/adapters/http/middleware"
	"workshopreg/internal/adapters/http/perf"
	"workshopreg/internal/adapters/storage"
	participantStore "workshopreg/internal/adapters/storage/participant"
	sessionStore "workshopreg/internal/adapters/storage/session"
	settingStore "workshopreg/internal/adapters/storage/setting"
	"workshopreg/internal/domain/intake"
	"workshopreg/internal/domain/participant"
	"workshopreg/internal/domain/setting"
	"workshopreg/internal/domain/workshop"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv          *Server
	handler      http.Handler
	participants *participantStore.SQLiteStore
	settings     *settingStore.SQLiteStore
	sessions     *sessionStore.MemoryStore
	now          time.Time
}

func newTestEnv(t *testing.T, configure ...func(*Deps)) *testEnv {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.MigrateDB(db))

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	reg, err := workshop.NewRegistry([]workshop.Workshop{
		{Code: "ai", Name: "AI & Machine Learning", Description: "Learn **models**", PasswordHash: string(hash)},
		{Code: "web", Name: "Web Development", Description: "HTML and <script>alert(1)</script>", PasswordHash: string(hash)},
		{Code: "mobile", Name: "Mobile Apps", PasswordHash: string(hash)},
		{Code: "cyber", Name: "Cyber Security", PasswordHash: string(hash)},
	})
	require.NoError(t, err)

	env := &testEnv{
		participants: participantStore.NewSQLiteStore(db),
		settings:     settingStore.NewSQLiteStore(db),
		sessions:     sessionStore.NewMemoryStore(time.Hour),
		now:          testNow,
	}
	seq := 0
	deps := Deps{
		Participants: env.participants,
		Settings:     env.settings,
		Sessions:     env.sessions,
		Workshops:    reg,
		Validator:    intake.NewValidator(intake.DefaultPolicy(), reg),
		Perf:         perf.NewCollector(16),
		DB:           db,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	srv, err := NewServer(deps, Options{
		CSRFKey:  bytes.Repeat([]byte{1}, 32),
		Location: time.UTC,
		GenerateID: func() string {
			seq++
			return fmt.Sprintf("reg-%03d", seq)
		},
		Now: func() time.Time { return env.now },
	})
	require.NoError(t, err)
	env.srv = srv
	// Forgery checks are covered in the middleware package.
	env.handler = middleware.Chain(srv.routes(), middleware.Sessions(env.sessions, middleware.CookieOptions{}))
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge >= 0 {
			return c
		}
	}
	return nil
}

// newVisitor opens the form once and returns the issued session cookie.
func (e *testEnv) newVisitor(t *testing.T) *http.Cookie {
	t.Helper()
	rr := e.do(t, "GET", "/", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	c := sessionCookie(rr)
	require.NotNil(t, c)
	return c
}

// loginAs authenticates a fresh visitor and returns the rotated cookie.
func (e *testEnv) loginAs(t *testing.T, code string) *http.Cookie {
	t.Helper()
	rr := e.do(t, "GET", "/admin/login", nil, nil)
	c := sessionCookie(rr)
	require.NotNil(t, c)
	sess, ok := e.sessions.Get(c.Value)
	require.True(t, ok)

	rr = e.do(t, "POST", "/admin/login", url.Values{"workshop": {code}, "password": {"correct-horse"}, "csrf_token": {sess.CSRFToken}}, c)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/admin/dashboard", rr.Header().Get("Location"))
	rotated := sessionCookie(rr)
	require.NotNil(t, rotated)
	require.NotEqual(t, c.Value, rotated.Value)
	return rotated
}

func registrationForm(email string, prefs ...string) url.Values {
	return url.Values{
		"name":              {"Ahmed Hassan"},
		"email":             {email},
		"phone":             {"01012345678"},
		"university":        {"Cairo University"},
		"faculty":           {"Engineering"},
		"level":             {"Level 3"},
		"first_preference":  {prefs[0]},
		"second_preference": {prefs[1]},
		"third_preference":  {prefs[2]},
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestRegisterForm_RendersWorkshops(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "AI &amp; Machine Learning")
	require.Contains(t, body, "<strong>models</strong>")
	require.NotContains(t, body, "<script>alert(1)</script>")
}

func TestRegisterForm_ClosedRedirects(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.settings.Set(context.Background(), setting.Setting{Name: setting.RegistrationOpen, Value: setting.Off}))

	rr := env.do(t, "GET", "/", nil, nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/closed", rr.Header().Get("Location"))

	rr = env.do(t, "POST", "/register", registrationForm("a@x.com", "ai", "web", "mobile"), nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/closed", rr.Header().Get("Location"))
}

func TestRegister_SuccessThenDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	c := env.newVisitor(t)

	rr := env.do(t, "POST", "/register", registrationForm("a@x.com", "ai", "web", "mobile"), c)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeJSON(t, rr)["success"])

	rr = env.do(t, "POST", "/register", registrationForm("A@X.com", "cyber", "web", "mobile"), c)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeJSON(t, rr)
	require.Equal(t, false, body["success"])
	require.Equal(t, "email", body["field"])

	sess, _ := env.sessions.Get(c.Value)
	require.Equal(t, 1, sess.Registrations)
}

func TestRegister_FieldError(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/register", registrationForm("a@x.com", "ai", "ai", "mobile"), env.newVisitor(t))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "second_preference", decodeJSON(t, rr)["field"])
}

func TestRegister_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	c := env.newVisitor(t)
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		rr := env.do(t, "POST", "/register", registrationForm(email, "ai", "web", "mobile"), c)
		require.Equal(t, http.StatusOK, rr.Code, "registration %d", i+1)
	}

	rr := env.do(t, "POST", "/register", registrationForm("d@x.com", "ai", "web", "mobile"), c)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	body := decodeJSON(t, rr)
	require.Equal(t, true, body["limit"])
	require.Equal(t, float64(3600), body["remaining"])
	require.Equal(t, "3600", rr.Header().Get("Retry-After"))

	env.now = testNow.Add(time.Hour - 500*time.Millisecond)
	rr = env.do(t, "POST", "/register", registrationForm("d@x.com", "ai", "web", "mobile"), c)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, float64(1), decodeJSON(t, rr)["remaining"], "the last half second still waits one second")
	require.Equal(t, "1", rr.Header().Get("Retry-After"))

	env.now = testNow.Add(time.Hour)
	rr = env.do(t, "POST", "/register", registrationForm("d@x.com", "ai", "web", "mobile"), c)
	require.Equal(t, http.StatusOK, rr.Code)
}

// delayedNotifier holds each confirmation for a mail-sized pause.
type delayedNotifier struct{ delay time.Duration }

func (n delayedNotifier) NotifyRegistered(context.Context, participant.Participant) error {
	time.Sleep(n.delay)
	return nil
}

func TestRegister_ConcurrentSameCookieHonoursLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Notifier = delayedNotifier{delay: 50 * time.Millisecond} })
	c := env.newVisitor(t)

	const requests = 12
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := env.do(t, "POST", "/register", registrationForm(fmt.Sprintf("burst%d@x.com", i), "ai", "web", "mobile"), c)
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	accepted, limited := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			accepted++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	require.Equal(t, 3, accepted, "statuses: %v", codes)
	require.Equal(t, requests-3, limited, "statuses: %v", codes)

	n, err := env.participants.CountForWorkshop(context.Background(), participantStore.WorkshopFilter{Code: "ai"})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	sess, ok := env.sessions.Get(c.Value)
	require.True(t, ok)
	require.Equal(t, 3, sess.Registrations)
}

func TestLogin_ConcurrentWrongPasswordsLockSession(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/admin/login", nil, nil)
	c := sessionCookie(rr)
	require.NotNil(t, c)
	sess, ok := env.sessions.Get(c.Value)
	require.True(t, ok)

	const requests = 8
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.do(t, "POST", "/admin/login", url.Values{"workshop": {"ai"}, "password": {"guess"}, "csrf_token": {sess.CSRFToken}}, c)
		}()
	}
	wg.Wait()

	stored, ok := env.sessions.Get(c.Value)
	require.True(t, ok)
	require.Equal(t, 3, stored.LoginAttempts, "only guesses before lockout are checked")

	rr = env.do(t, "POST", "/admin/login", url.Values{"workshop": {"ai"}, "password": {"correct-horse"}, "csrf_token": {sess.CSRFToken}}, c)
	require.Equal(t, http.StatusOK, rr.Code, "locked session must not log in")
	require.Nil(t, sessionCookie(rr))
}

func TestLogin_WrongPasswordCountsAndLocks(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/admin/login", nil, nil)
	c := sessionCookie(rr)
	sess, _ := env.sessions.Get(c.Value)

	for i := 1; i <= 3; i++ {
		rr = env.do(t, "POST", "/admin/login", url.Values{"workshop": {"ai"}, "password": {"nope"}, "csrf_token": {sess.CSRFToken}}, c)
		require.Equal(t, http.StatusOK, rr.Code)
		stored, _ := env.sessions.Get(c.Value)
		require.Equal(t, i, stored.LoginAttempts)
	}

	rr = env.do(t, "POST", "/admin/login", url.Values{"workshop": {"ai"}, "password": {"correct-horse"}, "csrf_token": {sess.CSRFToken}}, c)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "too many failed attempts")
	stored, _ := env.sessions.Get(c.Value)
	require.False(t, stored.IsAuthenticated())
}

func TestLogin_BadSessionToken(t *testing.T) {
	env := newTestEnv(t)
	c := sessionCookie(env.do(t, "GET", "/admin/login", nil, nil))
	rr := env.do(t, "POST", "/admin/login", url.Values{"workshop": {"ai"}, "password": {"correct-horse"}, "csrf_token": {"forged"}}, c)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid security token")
	stored, _ := env.sessions.Get(c.Value)
	require.Equal(t, 0, stored.LoginAttempts)
}

func TestDashboard_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/admin/dashboard", nil, nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/admin/login", rr.Header().Get("Location"))
}

func seedParticipant(t *testing.T, env *testEnv, id, email string, prefs [3]string, at time.Time) {
	t.Helper()
	require.NoError(t, env.participants.Insert(context.Background(), participant.Participant{
		ID: id, Name: "Person " + id, Email: email, Phone: "01012345678",
		FirstPreference: prefs[0], SecondPreference: prefs[1], ThirdPreference: prefs[2],
		Status: participant.StatusPending, RegisteredAt: at,
	}))
}

func TestDashboard_ListsWorkshopParticipants(t *testing.T) {
	env := newTestEnv(t)
	seedParticipant(t, env, "p1", "p1@x.com", [3]string{"web", "mobile", "ai"}, testNow.Add(-time.Hour))
	seedParticipant(t, env, "p2", "p2@x.com", [3]string{"ai", "web", "mobile"}, testNow.Add(-48*time.Hour))
	seedParticipant(t, env, "p3", "p3@x.com", [3]string{"web", "mobile", "cyber"}, testNow)

	c := env.loginAs(t, "ai")
	rr := env.do(t, "GET", "/admin/dashboard", nil, c)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "Person p1")
	require.Contains(t, body, "Person p2")
	require.NotContains(t, body, "Person p3")
	require.Less(t, strings.Index(body, "Person p2"), strings.Index(body, "Person p1"), "first preference rows come first")
}

func TestDashboard_IdleTimeoutLogsOut(t *testing.T) {
	env := newTestEnv(t)
	c := env.loginAs(t, "ai")
	env.now = env.now.Add(31 * time.Minute)

	rr := env.do(t, "GET", "/admin/dashboard", nil, c)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/admin/login?expired=1", rr.Header().Get("Location"))
	_, ok := env.sessions.Get(c.Value)
	require.False(t, ok)
}

func TestDashboard_LogoutParam(t *testing.T) {
	env := newTestEnv(t)
	c := env.loginAs(t, "ai")
	rr := env.do(t, "GET", "/admin/dashboard?logout=1", nil, c)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/admin/login", rr.Header().Get("Location"))
	_, ok := env.sessions.Get(c.Value)
	require.False(t, ok)
}

func TestUpdateStatus_ScopedToWorkshop(t *testing.T) {
	env := newTestEnv(t)
	seedParticipant(t, env, "p1", "p1@x.com", [3]string{"web", "mobile", "ai"}, testNow)
	seedParticipant(t, env, "p2", "p2@x.com", [3]string{"web", "mobile", "cyber"}, testNow)
	c := env.loginAs(t, "ai")

	rr := env.do(t, "POST", "/admin/status", url.Values{"id": {"p1"}, "status": {"contacted"}}, c)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSON(t, rr)
	require.Equal(t, true, body["success"])
	require.Equal(t, "contacted", body["status"])

	rr = env.do(t, "POST", "/admin/status", url.Values{"id": {"p2"}, "status": {"contacted"}}, c)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, false, decodeJSON(t, rr)["success"])

	rr = env.do(t, "POST", "/admin/status", url.Values{"id": {"p1"}, "status": {"approved"}}, c)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateStatus_AnonymousJSON(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/admin/status", url.Values{"id": {"p1"}, "status": {"contacted"}}, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, false, decodeJSON(t, rr)["success"])
}

func TestExport_CSV(t *testing.T) {
	env := newTestEnv(t)
	seedParticipant(t, env, "p1", "p1@x.com", [3]string{"web", "ai", "mobile"}, testNow)
	c := env.loginAs(t, "ai")

	rr := env.do(t, "GET", "/admin/export?workshop=ai", nil, c)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `attachment; filename="ai_all_participants_2026-03-01.csv"`, rr.Header().Get("Content-Disposition"))
	require.True(t, strings.HasPrefix(rr.Body.String(), "\xEF\xBB\xBFName,Email,Phone"))
	require.Contains(t, rr.Body.String(), "Second Preference")

	rr = env.do(t, "GET", "/admin/export?workshop=web", nil, c)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStats_JSON(t *testing.T) {
	env := newTestEnv(t)
	seedParticipant(t, env, "p1", "p1@x.com", [3]string{"web", "ai", "mobile"}, testNow)
	c := env.loginAs(t, "ai")

	rr := env.do(t, "GET", "/admin/stats", nil, c)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSON(t, rr)
	require.Equal(t, float64(1), body["total"])
	require.Len(t, body["by_first_preference"], 4)
}

func TestPerf_JSON(t *testing.T) {
	env := newTestEnv(t)
	c := env.loginAs(t, "ai")
	rr := env.do(t, "GET", "/admin/perf", nil, c)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, decodeJSON(t, rr), "requests")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", decodeJSON(t, rr)["status"])
}

func TestNewServer_RejectsShortKey(t *testing.T) {
	_, err := NewServer(Deps{}, Options{})
	require.Error(t, err)
}
