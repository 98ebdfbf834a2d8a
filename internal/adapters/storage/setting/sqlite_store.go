package setting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"workshopreg/internal/adapters/storage"
	domain "workshopreg/internal/domain/setting"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new settings store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get retrieves a setting by name.
// PRE: name is non-empty
// POST: Returns the setting or domain.ErrNotFound
// INVARIANT: Store state is not mutated
func (s *SQLiteStore) Get(ctx context.Context, name string) (domain.Setting, error) {
	out := domain.Setting{Name: name}
	err := s.db.QueryRowContext(storage.WithOp(ctx, "setting.Get"),
		"SELECT value FROM settings WHERE name = ?", name).Scan(&out.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Setting{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Setting{}, fmt.Errorf("get setting %s: %w", name, err)
	}
	return out, nil
}

// Set upserts a setting.
// PRE: s.Name is non-empty
// POST: The setting holds s.Value
func (s *SQLiteStore) Set(ctx context.Context, st domain.Setting) error {
	_, err := s.db.ExecContext(storage.WithOp(ctx, "setting.Set"), `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, st.Name, st.Value)
	if err != nil {
		return fmt.Errorf("save setting %s: %w", st.Name, err)
	}
	return nil
}
