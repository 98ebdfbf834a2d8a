package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"workshopreg/internal/adapters/http/middleware"
	"workshopreg/internal/domain/participant"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages rendered inside layout.html
var pageNames = []string{"register.html", "closed.html", "login.html", "dashboard.html"}

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

type pageSet struct {
	byName map[string]*template.Template
}

var funcMap = template.FuncMap{
	"renderMarkdown": renderMarkdown,
	"add":            func(a, b int) int { return a + b },
	"sub":            func(a, b int) int { return a - b },
	"statusLabel":    statusLabel,
	"statuses":       func() []string { return participant.Statuses },
	"formatTime": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("Jan 2, 2006 15:04")
	},
	"pageQuery": func(page int, search, status string) template.URL {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		if search != "" {
			q.Set("q", search)
		}
		if status != "" {
			q.Set("status", status)
		}
		return template.URL(q.Encode())
	},
}

func parsePages() (*pageSet, error) {
	ps := &pageSet{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		ps.byName[name] = tpl
	}
	return ps, nil
}

// renderMarkdown converts a workshop description to HTML.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func statusLabel(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// render writes a full page, buffering so template errors never produce half a page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	tpl, ok := s.pages.byName[name]
	if !ok {
		internalError(w, r, fmt.Errorf("unknown template %s", name))
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	logInternal(r, err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// jsonInternalError is internalError for endpoints that answer in JSON.
func jsonInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logInternal(r, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": message})
}

func logInternal(r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal_error",
		"request_id", middleware.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json_encode_failed", "error", err.Error())
	}
}
