package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"workshopreg/internal/domain/participant"
	"workshopreg/internal/domain/setting"
)

// ErrUnauthorized is returned when the participant is not in the operator's workshop.
var ErrUnauthorized = errors.New("participant not found or unauthorized")

// ParticipantStoreForStatus defines the store interface needed by UpdateStatus.
type ParticipantStoreForStatus interface {
	UpdateStatus(ctx context.Context, id, code, status string) error
}

// UpdateStatusInput carries input for the orchestrator.
type UpdateStatusInput struct {
	WorkshopCode  string
	ParticipantID string
	Status        string
}

// UpdateStatusDeps holds dependencies for UpdateStatus.
type UpdateStatusDeps struct {
	ParticipantStore ParticipantStoreForStatus
}

// ExecuteUpdateStatus moves a participant of the operator's workshop to a new status.
// PRE: WorkshopCode is the authenticated workshop
// POST: Status persisted; returns the new status
// INVARIANT: A participant who did not rank the workshop is never modified
func ExecuteUpdateStatus(ctx context.Context, input UpdateStatusInput, deps UpdateStatusDeps) (string, error) {
	status := strings.TrimSpace(input.Status)
	if !participant.IsValidStatus(status) {
		return "", participant.ErrInvalidStatus
	}
	id := strings.TrimSpace(input.ParticipantID)
	if id == "" || input.WorkshopCode == "" {
		return "", ErrUnauthorized
	}

	err := deps.ParticipantStore.UpdateStatus(ctx, id, input.WorkshopCode, status)
	if errors.Is(err, participant.ErrNotFound) {
		slog.Warn("status_update_denied", "workshop", input.WorkshopCode, "participant_id", id)
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}

	slog.Info("status_updated", "workshop", input.WorkshopCode, "participant_id", id, "status", status)
	return status, nil
}

// SettingWriter persists settings.
type SettingWriter interface {
	Set(ctx context.Context, s setting.Setting) error
}

// ExecuteSetRegistrationOpen flips the public registration switch.
// POST: registration_open is "1" when open, "0" otherwise
func ExecuteSetRegistrationOpen(ctx context.Context, open bool, settings SettingWriter) error {
	if err := settings.Set(ctx, setting.Setting{Name: setting.RegistrationOpen, Value: setting.FromBool(open)}); err != nil {
		return err
	}
	slog.Info("registration_switched", "open", open)
	return nil
}
