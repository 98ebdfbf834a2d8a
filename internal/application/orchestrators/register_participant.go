package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"workshopreg/internal/domain/intake"
	"workshopreg/internal/domain/participant"
	"workshopreg/internal/domain/session"
	"workshopreg/internal/domain/setting"
)

// ErrRegistrationClosed is returned while the registration switch is off.
var ErrRegistrationClosed = errors.New("registration is closed")

// RateLimitedError reports a session that reached its registration quota.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return "registration limit reached, try again in " + HumanizeWait(e.Remaining)
}

// RetryAfter returns the wait in whole seconds, rounded up and at least 1.
func (e *RateLimitedError) RetryAfter() int {
	return ceilSeconds(e.Remaining)
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// HumanizeWait renders a wait such as "42 minutes".
func HumanizeWait(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

// ParticipantStoreForRegistration defines the store interface needed by registration.
type ParticipantStoreForRegistration interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, p participant.Participant) error
}

// SettingReader reads persisted settings.
type SettingReader interface {
	Get(ctx context.Context, name string) (setting.Setting, error)
}

// FormValidator validates and normalizes a registration form.
type FormValidator interface {
	Validate(f intake.Form) (intake.Form, error)
}

// RegistrationNotifier is told about each new participant.
type RegistrationNotifier interface {
	NotifyRegistered(ctx context.Context, p participant.Participant) error
}

// SessionUpdater applies a change to one stored session atomically.
type SessionUpdater interface {
	Update(id string, fn func(*session.Session) error) (session.Session, error)
}

// DefaultNotifyTimeout bounds the confirmation mail call.
const DefaultNotifyTimeout = 10 * time.Second

// RegisterParticipantInput carries input for the orchestrator.
type RegisterParticipantInput struct {
	Form      intake.Form
	SessionID string
}

// RegisterParticipantDeps holds dependencies for RegisterParticipant.
type RegisterParticipantDeps struct {
	ParticipantStore ParticipantStoreForRegistration
	SettingStore     SettingReader
	Sessions         SessionUpdater
	Validator        FormValidator
	Limit            session.RegistrationLimit
	Notifier         RegistrationNotifier // optional
	NotifyTimeout    time.Duration        // zero means DefaultNotifyTimeout
	GenerateID       func() string
	Now              func() time.Time
}

// ExecuteRegisterParticipant records one registration.
// PRE: input.SessionID names a stored session
// POST: Participant stored with status pending and the session counter incremented
// INVARIANT: Email is unique across participants (the store constraint is authoritative)
// INVARIANT: The quota check, insert and counter bump run under the session's lock
func ExecuteRegisterParticipant(ctx context.Context, input RegisterParticipantInput, deps RegisterParticipantDeps) (participant.Participant, error) {
	open, err := IsRegistrationOpen(ctx, deps.SettingStore)
	if err != nil {
		return participant.Participant{}, err
	}
	if !open {
		return participant.Participant{}, ErrRegistrationClosed
	}

	form, err := deps.Validator.Validate(input.Form)
	if err != nil {
		return participant.Participant{}, err
	}

	var p participant.Participant
	_, err = deps.Sessions.Update(input.SessionID, func(sess *session.Session) error {
		now := deps.Now()
		if ok, remaining := sess.RegistrationAllowed(now, deps.Limit); !ok {
			slog.Warn("registration_throttled", "remaining_s", ceilSeconds(remaining))
			return &RateLimitedError{Remaining: remaining}
		}

		taken, err := deps.ParticipantStore.ExistsByEmail(ctx, form.Email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return duplicateEmailError()
		}

		candidate := participant.Participant{
			ID:               deps.GenerateID(),
			Name:             form.Name,
			Email:            form.Email,
			Phone:            form.Phone,
			University:       form.University,
			Faculty:          form.Faculty,
			Level:            form.Level,
			FirstPreference:  form.FirstPreference,
			SecondPreference: form.SecondPreference,
			ThirdPreference:  form.ThirdPreference,
			TechSkills:       form.TechSkills,
			Status:           participant.StatusPending,
			RegisteredAt:     now,
		}
		if err := deps.ParticipantStore.Insert(ctx, candidate); err != nil {
			if errors.Is(err, participant.ErrDuplicateEmail) {
				return duplicateEmailError()
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		sess.RecordRegistration(now)
		p = candidate
		return nil
	})
	if err != nil {
		return participant.Participant{}, err
	}
	slog.Info("registration_created", "participant_id", p.ID, "first_preference", p.FirstPreference)

	notifyRegistered(ctx, p, deps)
	return p, nil
}

// notifyRegistered sends the confirmation once the session is saved.
// A failure is logged; the registration stands.
func notifyRegistered(ctx context.Context, p participant.Participant, deps RegisterParticipantDeps) {
	if deps.Notifier == nil {
		return
	}
	timeout := deps.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := deps.Notifier.NotifyRegistered(ctx, p); err != nil {
		slog.Error("confirmation_failed", "participant_id", p.ID, "error", err)
	}
}

// IsRegistrationOpen reads the registration switch; a missing row means closed.
func IsRegistrationOpen(ctx context.Context, settings SettingReader) (bool, error) {
	s, err := settings.Get(ctx, setting.RegistrationOpen)
	if errors.Is(err, setting.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read registration switch: %w", err)
	}
	return s.Enabled(), nil
}

func duplicateEmailError() error {
	return &intake.FieldError{Field: intake.FieldEmail, Message: "This email is already registered"}
}
