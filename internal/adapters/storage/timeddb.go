package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"workshopreg/internal/adapters/http/perf"
)

// SQLDB is the database interface used by all stores.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQuery is used when no threshold is configured.
const DefaultSlowQuery = 50 * time.Millisecond

// TimedDB wraps a *sql.DB to log slow queries and record them to a collector.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	threshold time.Duration
}

var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps db with timing instrumentation.
// PRE: db is a valid database connection; collector may be nil
// POST: Queries at or above slow are logged at WARN
func NewTimedDB(db *sql.DB, collector *perf.Collector, slow time.Duration) *TimedDB {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &TimedDB{db: db, collector: collector, threshold: slow}
}

func (t *TimedDB) observe(ctx context.Context, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	level := slog.LevelDebug
	event := "query"
	if elapsed >= t.threshold {
		level, event = slog.LevelWarn, "slow_query"
	}
	slog.Log(ctx, level, event, "op", op, "duration_ms", perf.Millis(elapsed), "failed", err != nil)

	if t.collector != nil {
		t.collector.Record(perf.Entry{
			Kind:       perf.KindQuery,
			Path:       op,
			DurationMs: perf.Millis(elapsed),
			Timestamp:  start,
		})
	}
}

// ExecContext times sql.DB.ExecContext.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.db.ExecContext(ctx, query, args...)
	t.observe(ctx, opName(ctx, "exec"), start, err)
	return res, err
}

// QueryContext times sql.DB.QueryContext.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.observe(ctx, opName(ctx, "query"), start, err)
	return rows, err
}

// QueryRowContext times sql.DB.QueryRowContext. Errors surface at Scan, so
// the entry never reports a failure.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.observe(ctx, opName(ctx, "query_row"), start, nil)
	return row
}

// PingContext verifies the connection for the health check.
func (t *TimedDB) PingContext(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

type opKey struct{}

// WithOp labels the queries issued under ctx, e.g. "participant.List".
func WithOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

func opName(ctx context.Context, fallback string) string {
	if op, ok := ctx.Value(opKey{}).(string); ok && op != "" {
		return op
	}
	return fallback
}
