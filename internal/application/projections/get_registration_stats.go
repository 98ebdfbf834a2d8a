package projections

import (
	"context"
	"time"

	"workshopreg/internal/adapters/storage/participant"
)

// TopTallies bounds the university and faculty leaderboards.
const TopTallies = 10

// WorkshopTally is a per-workshop first-preference count.
type WorkshopTally struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GetRegistrationStatsResult carries the query result.
type GetRegistrationStatsResult struct {
	Total             int                 `json:"total"`
	Today             int                 `json:"today"`
	ByFirstPreference []WorkshopTally     `json:"by_first_preference"`
	TopUniversities   []participant.Tally `json:"top_universities"`
	TopFaculties      []participant.Tally `json:"top_faculties"`
}

// GetRegistrationStatsDeps holds dependencies for GetRegistrationStats.
type GetRegistrationStatsDeps struct {
	ParticipantStore ParticipantStore
	Workshops        WorkshopCatalog
	Now              func() time.Time
}

// QueryGetRegistrationStats aggregates registrations across every workshop.
// POST: ByFirstPreference has one entry per configured workshop in registry order, zero-filled
func QueryGetRegistrationStats(ctx context.Context, deps GetRegistrationStatsDeps) (GetRegistrationStatsResult, error) {
	g, err := deps.ParticipantStore.GlobalStats(ctx, participant.Today(deps.Now()), TopTallies)
	if err != nil {
		return GetRegistrationStatsResult{}, err
	}
	counts := make(map[string]int, len(g.ByFirstPreference))
	for _, t := range g.ByFirstPreference {
		counts[t.Name] = t.Count
	}
	codes := deps.Workshops.Codes()
	byFirst := make([]WorkshopTally, 0, len(codes))
	for _, code := range codes {
		byFirst = append(byFirst, WorkshopTally{Code: code, Name: deps.Workshops.Name(code), Count: counts[code]})
	}
	return GetRegistrationStatsResult{
		Total:             g.Total,
		Today:             g.Today,
		ByFirstPreference: byFirst,
		TopUniversities:   nonNil(g.TopUniversities),
		TopFaculties:      nonNil(g.TopFaculties),
	}, nil
}

func nonNil(t []participant.Tally) []participant.Tally {
	if t == nil {
		return []participant.Tally{}
	}
	return t
}
