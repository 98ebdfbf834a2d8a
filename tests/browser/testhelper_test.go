package browser_test

import (
	"bytes"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/crypto/bcrypt"

	web "workshopreg/internal/adapters/http"
	"workshopreg/internal/adapters/storage"
	participantStore "workshopreg/internal/adapters/storage/participant"
	sessionStore "workshopreg/internal/adapters/storage/session"
	settingStore "workshopreg/internal/adapters/storage/setting"
	"workshopreg/internal/domain/intake"
	"workshopreg/internal/domain/workshop"
)

// operatorPassword unlocks every seeded workshop.
const operatorPassword = "operator-pass"

// testApp holds the running test server and Playwright handles.
type testApp struct {
	BaseURL      string
	DB           *sql.DB
	Server       *http.Server
	PW           *playwright.Playwright
	Browser      playwright.Browser
	Participants *participantStore.SQLiteStore
}

// newTestApp wires the app against a temp SQLite file and starts an HTTP server.
// Skips when Playwright's driver or browsers are not installed.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(operatorPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	registry, err := workshop.NewRegistry([]workshop.Workshop{
		{Code: "Devology", Name: "Devology", Description: "Full stack **web** development", PasswordHash: string(hash)},
		{Code: "Marketnuer", Name: "Marketnuer", PasswordHash: string(hash)},
		{Code: "Techsolve", Name: "Techsolve", PasswordHash: string(hash)},
		{Code: "Data Station", Name: "Data Station", PasswordHash: string(hash)},
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	participants := participantStore.NewSQLiteStore(db)
	mux, err := web.NewMux(web.Deps{
		Participants: participants,
		Settings:     settingStore.NewSQLiteStore(db),
		Sessions:     sessionStore.NewMemoryStore(time.Hour),
		Workshops:    registry,
		Validator:    intake.NewValidator(intake.DefaultPolicy(), registry),
		DB:           db,
	}, web.Options{
		CSRFKey:            bytes.Repeat([]byte{9}, 32),
		TrustedOrigins:     []string{fmt.Sprintf("127.0.0.1:%d", port)},
		RateLimitPerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("failed to build mux: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	pw, err := playwright.Run()
	if err != nil {
		srv.Close()
		db.Close()
		t.Skipf("playwright unavailable: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		srv.Close()
		db.Close()
		t.Skipf("chromium unavailable: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		db.Close()
	})

	return &testApp{
		BaseURL:      baseURL,
		DB:           db,
		Server:       srv,
		PW:           pw,
		Browser:      browser,
		Participants: participants,
	}
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in as the operator of a workshop and waits for the dashboard.
func (a *testApp) login(t *testing.T, page playwright.Page, code string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/admin/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if _, err := page.Locator("select[name=workshop]").SelectOption(playwright.SelectOptionValues{Values: &[]string{code}}); err != nil {
		t.Fatalf("failed to select workshop: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(operatorPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/admin/dashboard", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not redirect to dashboard: %v", err)
	}
}
