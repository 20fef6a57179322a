// Package storage persists the client's durable state: a small key/value
// store (the browser localStorage equivalent) and a cookie jar, both in one
// sqlite file.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"

	"github.com/bhandras/starter/internal/database"
)

//go:embed migrations/*.sql
var localMigrations embed.FS

// Store is the client's local database.
type Store struct {
	db *database.DB
}

// Open opens (creating if needed) the local store at path.
func Open(path string) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db.DB, localMigrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, database.Now(),
	)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Cookies returns the cookie jar backed by this store, scoped to the host of
// origin (normally the API base URL).
func (s *Store) Cookies(origin string) (*CookieJar, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse cookie origin: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("cookie origin %q has no host", origin)
	}
	return &CookieJar{db: s.db.DB, host: u.Hostname(), now: database.Now}, nil
}
