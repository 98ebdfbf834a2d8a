package participant

import (
	"context"
	"time"

	domain "workshopreg/internal/domain/participant"
)

// Store persists Participant rows.
type Store interface {
	Insert(ctx context.Context, p domain.Participant) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateStatus(ctx context.Context, id, code, status string) error
	ListForWorkshop(ctx context.Context, filter WorkshopFilter) ([]domain.Participant, error)
	CountForWorkshop(ctx context.Context, filter WorkshopFilter) (int, error)
	WorkshopStats(ctx context.Context, code string, day DayRange) (WorkshopStats, error)
	GlobalStats(ctx context.Context, day DayRange, top int) (GlobalStats, error)
}

// WorkshopFilter selects participants that ranked a workshop.
// Limit <= 0 returns every matching row.
type WorkshopFilter struct {
	Code   string
	Search string
	Status string
	Limit  int
	Offset int
}

// DayRange is a half-open [Start, End) interval for "registered today" counts.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// Today returns the calendar day containing now in now's location.
func Today(now time.Time) DayRange {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return DayRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// WorkshopStats aggregates over every participant matching one workshop.
type WorkshopStats struct {
	Total      int
	First      int
	Second     int
	Third      int
	Today      int
	WithSkills int
}

// Tally is a labelled count.
type Tally struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GlobalStats aggregates over all participants.
type GlobalStats struct {
	Total             int
	Today             int
	ByFirstPreference []Tally
	TopUniversities   []Tally
	TopFaculties      []Tally
}
