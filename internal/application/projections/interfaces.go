package projections

import (
	"context"

	"workshopreg/internal/adapters/storage/participant"
	domain "workshopreg/internal/domain/participant"
)

// ParticipantStore interface for participant queries.
type ParticipantStore interface {
	ListForWorkshop(ctx context.Context, filter participant.WorkshopFilter) ([]domain.Participant, error)
	CountForWorkshop(ctx context.Context, filter participant.WorkshopFilter) (int, error)
	WorkshopStats(ctx context.Context, code string, day participant.DayRange) (participant.WorkshopStats, error)
	GlobalStats(ctx context.Context, day participant.DayRange, top int) (participant.GlobalStats, error)
}

// WorkshopCatalog lists the configured workshops.
type WorkshopCatalog interface {
	Codes() []string
	Name(code string) string
}
