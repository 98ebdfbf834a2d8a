package web

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"

	"workshopreg/internal/adapters/http/middleware"
	"workshopreg/internal/application/orchestrators"
	"workshopreg/internal/domain/intake"
)

// workshopOption is one selectable workshop on the form.
type workshopOption struct {
	Code        string
	Name        string
	Description template.HTML
}

func (s *Server) workshopOptions() []workshopOption {
	all := s.deps.Workshops.All()
	opts := make([]workshopOption, 0, len(all))
	for _, w := range all {
		opts = append(opts, workshopOption{Code: w.Code, Name: w.Name, Description: renderMarkdown(w.Description)})
	}
	return opts
}

// handleRegisterForm handles GET /
func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	open, err := orchestrators.IsRegistrationOpen(r.Context(), s.deps.Settings)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !open {
		http.Redirect(w, r, "/closed", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register.html", map[string]any{
		"Title":     "Workshop Registration",
		"CSRFField": csrf.TemplateField(r),
		"Workshops": s.workshopOptions(),
		"Policy":    s.deps.Validator.Policy(),
		"MaxSkills": intake.MaxTechSkillsLength,
	})
}

// handleClosed handles GET /closed
func (s *Server) handleClosed(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "closed.html", map[string]any{"Title": "Registration Closed"})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleRegister handles POST /register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		internalError(w, r, errors.New("register: no session in context"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid form submission"})
		return
	}

	input := orchestrators.RegisterParticipantInput{
		Form: intake.Form{
			Name:             r.PostFormValue(intake.FieldName),
			Email:            r.PostFormValue(intake.FieldEmail),
			Phone:            r.PostFormValue(intake.FieldPhone),
			University:       r.PostFormValue(intake.FieldUniversity),
			Faculty:          r.PostFormValue(intake.FieldFaculty),
			Level:            r.PostFormValue(intake.FieldLevel),
			FirstPreference:  r.PostFormValue(intake.FieldFirstPreference),
			SecondPreference: r.PostFormValue(intake.FieldSecondPreference),
			ThirdPreference:  r.PostFormValue(intake.FieldThirdPreference),
			TechSkills:       r.PostFormValue(intake.FieldTechSkills),
		},
		SessionID: sess.ID,
	}
	deps := orchestrators.RegisterParticipantDeps{
		ParticipantStore: s.deps.Participants,
		SettingStore:     s.deps.Settings,
		Sessions:         s.deps.Sessions,
		Validator:        s.deps.Validator,
		Limit:            s.opts.RegistrationLimit,
		Notifier:         s.deps.Notifier,
		GenerateID:       s.opts.GenerateID,
		Now:              s.opts.Now,
	}

	p, err := orchestrators.ExecuteRegisterParticipant(r.Context(), input, deps)
	var fieldErr *intake.FieldError
	var limited *orchestrators.RateLimitedError
	switch {
	case err == nil:
	case errors.Is(err, orchestrators.ErrRegistrationClosed):
		http.Redirect(w, r, "/closed", http.StatusSeeOther)
		return
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "field": fieldErr.Field, "message": fieldErr.Message})
		return
	case errors.As(err, &limited):
		wait := limited.RetryAfter()
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":   false,
			"limit":     true,
			"remaining": wait,
			"message":   "You have reached the registration limit. Please try again in " + orchestrators.HumanizeWait(limited.Remaining) + ".",
		})
		return
	default:
		jsonInternalError(w, r, err, "Registration failed. Please try again later.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Thank you, " + p.Name + "! Your registration has been received.",
	})
}
