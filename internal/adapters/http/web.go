package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"workshopreg/internal/adapters/http/middleware"
	"workshopreg/internal/adapters/http/perf"
	participantStore "workshopreg/internal/adapters/storage/participant"
	sessionStore "workshopreg/internal/adapters/storage/session"
	settingStore "workshopreg/internal/adapters/storage/setting"
	"workshopreg/internal/application/listutil"
	"workshopreg/internal/application/orchestrators"
	"workshopreg/internal/domain/intake"
	"workshopreg/internal/domain/session"
	"workshopreg/internal/domain/workshop"
)

// DefaultSessionTimeout is the operator inactivity limit.
const DefaultSessionTimeout = 30 * time.Minute

// DefaultRateLimitPerSecond is the per-IP request budget.
const DefaultRateLimitPerSecond = 10

// Pinger reports storage liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds everything the handlers need.
type Deps struct {
	Participants participantStore.Store
	Settings     settingStore.Store
	Sessions     sessionStore.Store
	Workshops    *workshop.Registry
	Validator    *intake.Validator
	Notifier     orchestrators.RegistrationNotifier // optional
	Perf         *perf.Collector                    // optional
	DB           Pinger                             // optional
}

// Options tunes the HTTP surface.
type Options struct {
	CSRFKey            []byte
	SecureCookies      bool
	TrustedOrigins     []string
	SessionTimeout     time.Duration
	Lockout            session.Lockout
	RegistrationLimit  session.RegistrationLimit
	PageSize           int
	SlowRequest        time.Duration
	RateLimitPerSecond int
	Location           *time.Location // calendar for "today" and CSV dates
	GenerateID         func() string
	Now                func() time.Time
}

func (o *Options) applyDefaults() {
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = DefaultSessionTimeout
	}
	if o.Lockout.MaxAttempts <= 0 || o.Lockout.Window <= 0 {
		o.Lockout = session.DefaultLockout()
	}
	if o.RegistrationLimit.Max <= 0 || o.RegistrationLimit.Window <= 0 {
		o.RegistrationLimit = session.DefaultRegistrationLimit()
	}
	if o.PageSize <= 0 {
		o.PageSize = listutil.DefaultPerPage
	}
	if o.RateLimitPerSecond <= 0 {
		o.RateLimitPerSecond = DefaultRateLimitPerSecond
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.GenerateID == nil {
		o.GenerateID = generateID
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Server serves the registration form and the operator dashboard.
type Server struct {
	deps  Deps
	opts  Options
	pages *pageSet
	guard middleware.OperatorGuard
}

// NewServer validates dependencies and parses templates.
// PRE: Participants, Settings, Sessions, Workshops and Validator are set; CSRFKey is 32 bytes
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Participants == nil || deps.Settings == nil || deps.Sessions == nil || deps.Workshops == nil || deps.Validator == nil {
		return nil, errors.New("web: missing dependency")
	}
	if len(opts.CSRFKey) != 32 {
		return nil, errors.New("web: CSRF key must be 32 bytes")
	}
	opts.applyDefaults()
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Server{
		deps:  deps,
		opts:  opts,
		pages: pages,
		guard: middleware.OperatorGuard{
			Store:   deps.Sessions,
			Timeout: opts.SessionTimeout,
			Cookie:  middleware.CookieOptions{Secure: opts.SecureCookies},
			Now:     opts.Now,
		},
	}, nil
}

// NewMux wires HTTP handlers and middleware for the app.
func NewMux(deps Deps, opts Options) (http.Handler, error) {
	s, err := NewServer(deps, opts)
	if err != nil {
		return nil, err
	}
	return s.Handler(), nil
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	limiter := middleware.NewRateLimiter(s.opts.RateLimitPerSecond, time.Second)

	// Request order: Timing -> RateLimit -> SecurityHeaders -> Sessions -> CSRF -> mux
	return middleware.Chain(s.routes(),
		middleware.CSRF(middleware.CSRFOptions{
			Key:            s.opts.CSRFKey,
			Secure:         s.opts.SecureCookies,
			TrustedOrigins: s.opts.TrustedOrigins,
			OnFailure:      http.HandlerFunc(s.handleCSRFFailure),
		}),
		middleware.Sessions(s.deps.Sessions, middleware.CookieOptions{Secure: s.opts.SecureCookies}),
		middleware.SecurityHeaders,
		middleware.RateLimit(limiter),
		middleware.Timing(s.deps.Perf, s.opts.SlowRequest),
	)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRegisterForm)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /closed", s.handleClosed)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /admin/login", s.handleLoginForm)
	mux.HandleFunc("POST /admin/login", s.handleLogin)
	mux.HandleFunc("GET /admin/logout", s.handleLogout)
	mux.HandleFunc("GET /admin/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
	})
	mux.Handle("GET /admin/dashboard", s.dashboardEntry())
	mux.Handle("GET /admin/export", s.guard.RequireOperator(http.HandlerFunc(s.handleExport)))
	mux.Handle("POST /admin/status", s.guard.RequireOperatorAPI(http.HandlerFunc(s.handleUpdateStatus)))
	mux.Handle("GET /admin/stats", s.guard.RequireOperatorAPI(http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /admin/perf", s.guard.RequireOperatorAPI(http.HandlerFunc(s.handlePerf)))
	return mux
}

// dashboardEntry honours ?logout=1 before the operator guard runs.
func (s *Server) dashboardEntry() http.Handler {
	guarded := s.guard.RequireOperator(http.HandlerFunc(s.handleDashboard))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("logout") == "1" {
			s.handleLogout(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}
