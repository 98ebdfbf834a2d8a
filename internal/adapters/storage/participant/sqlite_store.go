package participant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"workshopreg/internal/adapters/storage"
	domain "workshopreg/internal/domain/participant"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02 15:04:05.000000000"

// legacyLayouts are accepted when reading rows written by older deployments.
var legacyLayouts = []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB

	mu   sync.Mutex
	cols *columnSet
}

// NewSQLiteStore creates a new participant store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// columnSet maps the optional demographic fields onto what the table has.
// An absent column reads as the empty string.
type columnSet struct {
	university string
	faculty    string
	level      string
}

func (c *columnSet) selectList() string {
	return "id, name, email, phone, " +
		exprOrEmpty(c.university) + ", " + exprOrEmpty(c.faculty) + ", " + exprOrEmpty(c.level) +
		", first_preference, second_preference, third_preference, tech_skills, status, registration_date"
}

func exprOrEmpty(col string) string {
	if col == "" {
		return "''"
	}
	return "COALESCE(" + col + ", '')"
}

// columns inspects the participants table once per store.
func (s *SQLiteStore) columns(ctx context.Context) (*columnSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols != nil {
		return s.cols, nil
	}

	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(participants)")
	if err != nil {
		return nil, fmt.Errorf("inspect participants: %w", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		present[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(present) == 0 {
		return nil, errors.New("participants table does not exist")
	}

	cs := &columnSet{}
	switch {
	case present["university"]:
		cs.university = "university"
	case present["universty"]:
		cs.university = "universty"
	}
	if present["faculty"] {
		cs.faculty = "faculty"
	}
	if present["level"] {
		cs.level = "level"
	}
	s.cols = cs
	return cs, nil
}

// Insert persists a new participant.
// PRE: p passes Validate; ID and RegisteredAt are set
// POST: Row stored; a taken email yields domain.ErrDuplicateEmail
func (s *SQLiteStore) Insert(ctx context.Context, p domain.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	cols, err := s.columns(ctx)
	if err != nil {
		return err
	}

	names := []string{"id", "name", "email", "phone"}
	args := []any{p.ID, p.Name, strings.ToLower(p.Email), p.Phone}
	for _, opt := range []struct{ col, val string }{
		{cols.university, p.University},
		{cols.faculty, p.Faculty},
		{cols.level, p.Level},
	} {
		if opt.col != "" {
			names = append(names, opt.col)
			args = append(args, opt.val)
		}
	}
	names = append(names, "first_preference", "second_preference", "third_preference", "tech_skills", "status", "registration_date")
	args = append(args, p.FirstPreference, p.SecondPreference, p.ThirdPreference, p.TechSkills, p.Status, formatTime(p.RegisteredAt))

	query := "INSERT INTO participants (" + strings.Join(names, ", ") + ") VALUES (?" + strings.Repeat(", ?", len(names)-1) + ")"
	if _, err := s.db.ExecContext(storage.WithOp(ctx, "participant.Insert"), query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether an email is taken, ignoring case.
// PRE: email is non-empty
// INVARIANT: Store state is not mutated
func (s *SQLiteStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(storage.WithOp(ctx, "participant.ExistsByEmail"),
		"SELECT 1 FROM participants WHERE LOWER(email) = ? LIMIT 1", strings.ToLower(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus sets the status of a participant who ranked the workshop.
// PRE: status is valid
// POST: Row updated, or domain.ErrNotFound when no row matches both id and workshop
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, code, status string) error {
	if !domain.IsValidStatus(status) {
		return domain.ErrInvalidStatus
	}
	res, err := s.db.ExecContext(storage.WithOp(ctx, "participant.UpdateStatus"), `
		UPDATE participants SET status = ?
		WHERE id = ? AND (first_preference = ? OR second_preference = ? OR third_preference = ?)
	`, status, id, code, code, code)
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListForWorkshop returns matching participants by rank, then newest first.
// PRE: filter.Code is non-empty
// INVARIANT: Store state is not mutated
func (s *SQLiteStore) ListForWorkshop(ctx context.Context, filter WorkshopFilter) ([]domain.Participant, error) {
	cols, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	where, args := workshopWhereClause(filter)
	query := "SELECT " + cols.selectList() + " FROM participants" + where + `
		ORDER BY CASE
			WHEN first_preference = ? THEN 1
			WHEN second_preference = ? THEN 2
			ELSE 3
		END, registration_date DESC, id DESC`
	args = append(args, filter.Code, filter.Code)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(storage.WithOp(ctx, "participant.ListForWorkshop"), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// CountForWorkshop counts rows matching the filter, ignoring Limit and Offset.
func (s *SQLiteStore) CountForWorkshop(ctx context.Context, filter WorkshopFilter) (int, error) {
	where, args := workshopWhereClause(filter)
	var count int
	err := s.db.QueryRowContext(storage.WithOp(ctx, "participant.CountForWorkshop"),
		"SELECT COUNT(*) FROM participants"+where, args...).Scan(&count)
	return count, err
}

// WorkshopStats aggregates the full matching set of a workshop.
// INVARIANT: Search and status filters never apply here
func (s *SQLiteStore) WorkshopStats(ctx context.Context, code string, day DayRange) (WorkshopStats, error) {
	var st WorkshopStats
	err := s.db.QueryRowContext(storage.WithOp(ctx, "participant.WorkshopStats"), `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN first_preference = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN second_preference = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN third_preference = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN registration_date >= ? AND registration_date < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN TRIM(COALESCE(tech_skills, '')) <> '' THEN 1 ELSE 0 END), 0)
		FROM participants
		WHERE first_preference = ? OR second_preference = ? OR third_preference = ?
	`, code, code, code, formatTime(day.Start), formatTime(day.End), code, code, code).Scan(
		&st.Total, &st.First, &st.Second, &st.Third, &st.Today, &st.WithSkills,
	)
	if err != nil {
		return WorkshopStats{}, fmt.Errorf("workshop stats: %w", err)
	}
	return st, nil
}

// GlobalStats aggregates every registration.
// PRE: top > 0
// POST: Tallies are ordered by count descending, then name
func (s *SQLiteStore) GlobalStats(ctx context.Context, day DayRange, top int) (GlobalStats, error) {
	cols, err := s.columns(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	ctx = storage.WithOp(ctx, "participant.GlobalStats")

	var gs GlobalStats
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN registration_date >= ? AND registration_date < ? THEN 1 ELSE 0 END), 0)
		FROM participants
	`, formatTime(day.Start), formatTime(day.End)).Scan(&gs.Total, &gs.Today)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("global stats: %w", err)
	}

	if gs.ByFirstPreference, err = s.tally(ctx, "first_preference", 0); err != nil {
		return GlobalStats{}, err
	}
	if gs.TopUniversities, err = s.tally(ctx, cols.university, top); err != nil {
		return GlobalStats{}, err
	}
	if gs.TopFaculties, err = s.tally(ctx, cols.faculty, top); err != nil {
		return GlobalStats{}, err
	}
	return gs, nil
}

// tally groups by a trusted column name; an absent column yields no rows.
func (s *SQLiteStore) tally(ctx context.Context, col string, limit int) ([]Tally, error) {
	out := []Tally{}
	if col == "" {
		return out, nil
	}
	query := "SELECT " + col + ", COUNT(*) AS n FROM participants WHERE TRIM(COALESCE(" + col + ", '')) <> ''" +
		" GROUP BY " + col + " ORDER BY n DESC, " + col + " ASC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally %s: %w", col, err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Tally
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func workshopWhereClause(filter WorkshopFilter) (string, []any) {
	where := " WHERE (first_preference = ? OR second_preference = ? OR third_preference = ?)"
	args := []any{filter.Code, filter.Code, filter.Code}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		where += ` AND (name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`
		term := "%" + escapeLike(q) + "%"
		args = append(args, term, term, term)
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanParticipant(scan func(dest ...any) error) (domain.Participant, error) {
	var (
		p          domain.Participant
		registered string
		skills     sql.NullString
		status     sql.NullString
	)
	if err := scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.University,
		&p.Faculty,
		&p.Level,
		&p.FirstPreference,
		&p.SecondPreference,
		&p.ThirdPreference,
		&skills,
		&status,
		&registered,
	); err != nil {
		return domain.Participant{}, err
	}
	p.TechSkills = skills.String
	p.Status = status.String
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	t, err := parseTime(registered)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", p.ID, err)
	}
	p.RegisteredAt = t
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised registration_date %q", s)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
