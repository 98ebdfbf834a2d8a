package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"workshopreg/internal/adapters/http/middleware"
	"workshopreg/internal/application/listutil"
	"workshopreg/internal/application/orchestrators"
	"workshopreg/internal/application/projections"
	"workshopreg/internal/domain/participant"
	"workshopreg/internal/domain/session"
)

// perfWindow is how far back /admin/perf aggregates.
const perfWindow = 15 * time.Minute

// handleCSRFFailure answers requests rejected by the forgery guard.
func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	if reason := csrf.FailureReason(r); reason != nil {
		slog.Warn("csrf_rejected", "path", r.URL.Path, "reason", reason.Error())
	}
	if r.URL.Path == "/admin/login" {
		sess, _ := middleware.SessionFromContext(r.Context())
		s.renderLogin(w, r, http.StatusForbidden, sess, r.PostFormValue("workshop"), []string{orchestrators.ErrInvalidToken.Error()})
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Invalid security token. Please reload the page and try again."})
}

// renderLogin renders the login page with the attempt counter.
func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, sess *session.Session, selected string, errs []string) {
	data := map[string]any{
		"Title":     "Workshop Admin Login",
		"CSRFField": csrf.TemplateField(r),
		"Workshops": s.deps.Workshops.All(),
		"Selected":  selected,
		"Errors":    errs,
		"Expired":   r.URL.Query().Get("expired") == "1",
	}
	if sess != nil {
		data["Token"] = sess.CSRFToken
		if sess.LoginAttempts > 0 {
			data["Attempts"] = sess.LoginAttempts
			data["Remaining"] = sess.RemainingAttempts(s.opts.Lockout)
		}
	}
	s.render(w, r, status, "login.html", data)
}

// handleLoginForm handles GET /admin/login
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if ok && sess.IsAuthenticated() && !sess.IsExpired(s.opts.Now(), s.opts.SessionTimeout) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
		return
	}
	s.renderLogin(w, r, http.StatusOK, sess, "", nil)
}

// handleLogin handles POST /admin/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		internalError(w, r, errors.New("login: no session in context"))
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	input := orchestrators.LoginInput{
		WorkshopCode: r.PostFormValue("workshop"),
		Password:     r.PostFormValue("password"),
		Token:        r.PostFormValue("csrf_token"),
		SessionID:    sess.ID,
	}
	deps := orchestrators.LoginDeps{
		Workshops: s.deps.Workshops,
		Sessions:  s.deps.Sessions,
		Lockout:   s.opts.Lockout,
		Now:       s.opts.Now,
	}

	updated, err := orchestrators.ExecuteLogin(r.Context(), input, deps)
	if err != nil {
		var locked *orchestrators.LockedOutError
		if !errors.Is(err, orchestrators.ErrInvalidToken) && !errors.As(err, &locked) && !isAuthFailure(err) {
			internalError(w, r, err)
			return
		}
		s.renderLogin(w, r, http.StatusOK, &updated, input.WorkshopCode, []string{err.Error()})
		return
	}

	middleware.SetSessionCookie(w, updated.ID, middleware.CookieOptions{Secure: s.opts.SecureCookies})
	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

func isAuthFailure(err error) bool {
	return errors.Is(err, orchestrators.ErrInvalidWorkshop) || errors.Is(err, orchestrators.ErrInvalidCredentials)
}

// handleLogout handles GET /admin/logout and /admin/dashboard?logout=1
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		orchestrators.ExecuteLogout(r.Context(), *sess, s.deps.Sessions)
	}
	middleware.ClearSessionCookie(w, middleware.CookieOptions{Secure: s.opts.SecureCookies})
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// handleDashboard handles GET /admin/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	q := r.URL.Query()

	result, err := projections.QueryGetParticipantPage(r.Context(), projections.GetParticipantPageQuery{
		WorkshopCode: sess.WorkshopCode,
		Page:         listutil.ParsePage(q),
		PerPage:      s.opts.PageSize,
		Search:       q.Get("q"),
		Status:       q.Get("status"),
	}, projections.GetParticipantPageDeps{
		ParticipantStore: s.deps.Participants,
		Now:              s.localNow,
	})
	if err != nil {
		internalError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "dashboard.html", map[string]any{
		"Title":        sess.WorkshopName + " Dashboard",
		"CSRFField":    csrf.TemplateField(r),
		"CSRFToken":    csrf.Token(r),
		"WorkshopCode": sess.WorkshopCode,
		"WorkshopName": sess.WorkshopName,
		"Result":       result,
		"Location":     s.opts.Location,
	})
}

// handleUpdateStatus handles POST /admin/status
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid form submission"})
		return
	}

	status, err := orchestrators.ExecuteUpdateStatus(r.Context(), orchestrators.UpdateStatusInput{
		WorkshopCode:  sess.WorkshopCode,
		ParticipantID: r.PostFormValue("id"),
		Status:        r.PostFormValue("status"),
	}, orchestrators.UpdateStatusDeps{ParticipantStore: s.deps.Participants})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status, "message": "Status updated to " + statusLabel(status)})
	case errors.Is(err, participant.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid status"})
	case errors.Is(err, orchestrators.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "Participant not found or unauthorized"})
	default:
		jsonInternalError(w, r, err, "Status update failed")
	}
}

// handleExport handles GET /admin/export?workshop=
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	result, err := projections.QueryExportParticipants(r.Context(), projections.ExportParticipantsQuery{
		SessionWorkshop:   sess.WorkshopCode,
		RequestedWorkshop: r.URL.Query().Get("workshop"),
	}, projections.ExportParticipantsDeps{
		ParticipantStore: s.deps.Participants,
		Now:              s.localNow,
	})
	if errors.Is(err, projections.ErrWorkshopMismatch) {
		http.Error(w, "Invalid workshop", http.StatusForbidden)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	if err := result.WriteCSV(w, s.opts.Location); err != nil {
		slog.Error("export_failed", "workshop", result.WorkshopCode, "error", err.Error())
	}
}

// handleStats handles GET /admin/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, err := projections.QueryGetRegistrationStats(r.Context(), projections.GetRegistrationStatsDeps{
		ParticipantStore: s.deps.Participants,
		Workshops:        s.deps.Workshops,
		Now:              s.localNow,
	})
	if err != nil {
		jsonInternalError(w, r, err, "Statistics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePerf handles GET /admin/perf
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.deps.Perf == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Perf.Snapshot(s.opts.Now().Add(-perfWindow), 10))
}

// localNow is Now in the configured calendar location.
func (s *Server) localNow() time.Time {
	return s.opts.Now().In(s.opts.Location)
}
