package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists preferences in the preferences table. Observers see
// changes made through this store only; other writers are noticed through
// gpg_last_updated.
type SQLiteStore struct {
	observers

	db *sql.DB
}

// NewSQLiteStore wraps a database bootstrapped by storage.OpenSQLite.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (string, bool, error) {
	if name == "" {
		return "", false, fmt.Errorf("preference name is empty")
	}

	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE name = ?;", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %q: %w", name, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("preference name is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO preferences(name, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, name, value, now)
	if err != nil {
		return fmt.Errorf("upsert preference %q: %w", name, err)
	}

	s.notify(Change{Name: name, Value: value})
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE name = ?;", name)
	if err != nil {
		return fmt.Errorf("delete preference %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Change{Name: name, Deleted: true})
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM preferences ORDER BY name;")
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	return out, nil
}
