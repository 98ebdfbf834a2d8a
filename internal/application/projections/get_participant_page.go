package projections

import (
	"context"
	"strings"
	"time"

	"workshopreg/internal/adapters/storage/participant"
	"workshopreg/internal/application/listutil"
	domain "workshopreg/internal/domain/participant"
)

// GetParticipantPageQuery carries query parameters.
type GetParticipantPageQuery struct {
	WorkshopCode string
	Page         int
	PerPage      int
	Search       string
	Status       string
}

// ParticipantRow is one dashboard table row.
type ParticipantRow struct {
	domain.Participant
	Rank      domain.Rank
	HasSkills bool
}

// GetParticipantPageResult carries the query result.
type GetParticipantPageResult struct {
	Rows   []ParticipantRow
	Page   listutil.PageInfo
	Stats  participant.WorkshopStats
	Search string
	Status string
}

// GetParticipantPageDeps holds dependencies for GetParticipantPage.
type GetParticipantPageDeps struct {
	ParticipantStore ParticipantStore
	Now              func() time.Time
}

// QueryGetParticipantPage returns one page of a workshop's participants plus stat cards.
// PRE: WorkshopCode is the authenticated workshop
// POST: Rows ordered by rank, then registration time descending
// INVARIANT: Stats cover the whole workshop regardless of search and status filters
func QueryGetParticipantPage(ctx context.Context, query GetParticipantPageQuery, deps GetParticipantPageDeps) (GetParticipantPageResult, error) {
	status := strings.TrimSpace(query.Status)
	if !domain.IsValidStatus(status) {
		status = ""
	}
	filter := participant.WorkshopFilter{
		Code:   query.WorkshopCode,
		Search: strings.TrimSpace(query.Search),
		Status: status,
	}

	total, err := deps.ParticipantStore.CountForWorkshop(ctx, filter)
	if err != nil {
		return GetParticipantPageResult{}, err
	}
	page := listutil.NewPageInfo(query.Page, query.PerPage, total)

	filter.Limit = page.PerPage
	filter.Offset = page.Offset()
	list, err := deps.ParticipantStore.ListForWorkshop(ctx, filter)
	if err != nil {
		return GetParticipantPageResult{}, err
	}

	stats, err := deps.ParticipantStore.WorkshopStats(ctx, query.WorkshopCode, participant.Today(deps.Now()))
	if err != nil {
		return GetParticipantPageResult{}, err
	}

	rows := make([]ParticipantRow, 0, len(list))
	for _, p := range list {
		rows = append(rows, ParticipantRow{Participant: p, Rank: p.RankFor(query.WorkshopCode), HasSkills: p.HasTechSkills()})
	}
	return GetParticipantPageResult{
		Rows:   rows,
		Page:   page,
		Stats:  stats,
		Search: filter.Search,
		Status: status,
	}, nil
}
