package projections

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"workshopreg/internal/adapters/storage/participant"
	domain "workshopreg/internal/domain/participant"
)

// ErrWorkshopMismatch is returned when the requested export is not the operator's workshop.
var ErrWorkshopMismatch = errors.New("requested workshop does not match the session")

// ExportHeader is the first CSV row.
var ExportHeader = []string{"Name", "Email", "Phone", "University", "Faculty", "Level", "Preference", "Tech Skills", "Status", "Registration Date"}

const utf8BOM = "\xEF\xBB\xBF"

// ExportParticipantsQuery carries query parameters.
type ExportParticipantsQuery struct {
	SessionWorkshop   string
	RequestedWorkshop string
}

// ExportParticipantsResult carries the rows to serialize.
type ExportParticipantsResult struct {
	Filename     string
	WorkshopCode string
	Participants []domain.Participant
}

// ExportParticipantsDeps holds dependencies for ExportParticipants.
type ExportParticipantsDeps struct {
	ParticipantStore ParticipantStore
	Now              func() time.Time
}

// QueryExportParticipants loads every participant of the operator's workshop.
// PRE: SessionWorkshop is the authenticated workshop
// POST: Same predicate and ordering as the dashboard, unpaginated
func QueryExportParticipants(ctx context.Context, query ExportParticipantsQuery, deps ExportParticipantsDeps) (ExportParticipantsResult, error) {
	code := query.SessionWorkshop
	if code == "" || query.RequestedWorkshop != code {
		return ExportParticipantsResult{}, ErrWorkshopMismatch
	}
	list, err := deps.ParticipantStore.ListForWorkshop(ctx, participant.WorkshopFilter{Code: code})
	if err != nil {
		return ExportParticipantsResult{}, err
	}
	return ExportParticipantsResult{
		Filename:     code + "_all_participants_" + deps.Now().Format("2006-01-02") + ".csv",
		WorkshopCode: code,
		Participants: list,
	}, nil
}

// WriteCSV writes the export with a UTF-8 byte order mark.
// POST: An empty result still yields the header row
func (r ExportParticipantsResult) WriteCSV(w io.Writer, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, p := range r.Participants {
		record := []string{
			p.Name, p.Email, p.Phone, p.University, p.Faculty, p.Level,
			p.RankFor(r.WorkshopCode).Label(),
			p.TechSkills, p.Status,
			p.RegisteredAt.In(loc).Format("2006-01-02 15:04:05"),
		}
		for i := range record {
			record[i] = neutralizeFormula(record[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// neutralizeFormula stops spreadsheet apps from evaluating user text.
func neutralizeFormula(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}
