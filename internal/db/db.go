package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors for known failure conditions. Use errors.Is(err, db.ErrNotFound) to check.
var (
	ErrNotFound   = errors.New("preference not found")
	ErrEmptyValue = errors.New("preference value must not be empty")
)

// KeyPreferredCity is the preference key holding the user's default city.
const KeyPreferredCity = "preferred_city"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite connection and provides the preference operations.
type DB struct {
	db *sql.DB
}

// Preference is a single stored key/value pair.
type Preference struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// Open opens (or creates) a SQLite database at path, runs PRAGMAs and schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every pooled connection to :memory: would see its own empty database.
	if path == MemoryPath {
		sqlDB.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	if path != MemoryPath {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	return &DB{db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable. Used by the health route.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Set stores value under key, replacing any previous value.
func (d *DB) Set(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("set %s: %w", key, ErrEmptyValue)
	}
	now := time.Now().UTC().Format(time.DateTime)
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns the stored preference for key.
func (d *DB) Get(ctx context.Context, key string) (*Preference, error) {
	p := &Preference{}
	row := d.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM prefs WHERE key = ?`, key)
	if err := row.Scan(&p.Key, &p.Value, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return p, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// All returns every stored preference ordered by key.
func (d *DB) All(ctx context.Context) ([]Preference, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, value, updated_at FROM prefs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list prefs: %w", err)
	}
	defer rows.Close()
	var prefs []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// SetPreferredCity persists the user's default city.
func (d *DB) SetPreferredCity(ctx context.Context, city string) error {
	return d.Set(ctx, KeyPreferredCity, city)
}

// PreferredCity returns the stored default city. ok is false when none is set.
func (d *DB) PreferredCity(ctx context.Context) (city string, ok bool, err error) {
	p, err := d.Get(ctx, KeyPreferredCity)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Value, true, nil
}

// ClearPreferredCity removes the stored default city.
func (d *DB) ClearPreferredCity(ctx context.Context) error {
	return d.Delete(ctx, KeyPreferredCity)
}
