// Package registry keeps the dynamic service registry: backend base URLs
// registered at runtime, persisted in SQLite so registrations survive
// restarts instead of living in process memory.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Service is one persisted registration.
type Service struct {
	Name      string    `db:"name"`
	BaseURL   string    `db:"base_url"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists service registrations in SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma: %w", err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS services (
name TEXT PRIMARY KEY,
base_url TEXT NOT NULL,
updated_at TIMESTAMP NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize registry schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a registration.
func (s *Store) Upsert(ctx context.Context, name, baseURL string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services (name, base_url, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET base_url = excluded.base_url, updated_at = excluded.updated_at`,
		name, baseURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", name, err)
	}
	return nil
}

// Delete removes a registration. Deleting an unknown name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	return nil
}

// List returns all registrations ordered by name.
func (s *Store) List(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := s.db.SelectContext(ctx, &services, `SELECT name, base_url, updated_at FROM services ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}
