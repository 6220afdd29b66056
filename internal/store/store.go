// Package store persists scraped metadata in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding scraped records.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates a SQLite database at the given path.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the pragma below
	// in effect for every statement.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs database migrations up to the current schema version.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := s.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	migrations := []func(context.Context) error{
		s.migrateV1,
		s.migrateV2,
	}
	for i, m := range migrations {
		if version < i+1 {
			if err := m(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// migrateV1 creates records and their named entities.
func (s *Store) migrateV1(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			provider_slug TEXT NOT NULL,
			provider_data_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			cover_url TEXT,
			cover TEXT,
			release_date TEXT,  -- YYYY-MM-DD
			description TEXT,
			rating REAL,
			playtime INTEGER,   -- minutes
			early_access INTEGER NOT NULL DEFAULT 0,
			scraped_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(provider_slug, provider_data_id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_title ON records(title);

		CREATE TABLE IF NOT EXISTS developers (
			provider_slug TEXT NOT NULL,
			provider_data_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY(provider_slug, provider_data_id)
		);

		CREATE TABLE IF NOT EXISTS genres (
			provider_slug TEXT NOT NULL,
			provider_data_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY(provider_slug, provider_data_id)
		);

		CREATE TABLE IF NOT EXISTS tags (
			provider_slug TEXT NOT NULL,
			provider_data_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY(provider_slug, provider_data_id)
		);

		CREATE TABLE IF NOT EXISTS record_developers (
			record_slug TEXT NOT NULL,
			record_id TEXT NOT NULL,
			entity_slug TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY(record_slug, record_id) REFERENCES records(provider_slug, provider_data_id) ON DELETE CASCADE,
			FOREIGN KEY(entity_slug, entity_id) REFERENCES developers(provider_slug, provider_data_id),
			PRIMARY KEY(record_slug, record_id, entity_slug, entity_id)
		);

		CREATE TABLE IF NOT EXISTS record_genres (
			record_slug TEXT NOT NULL,
			record_id TEXT NOT NULL,
			entity_slug TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY(record_slug, record_id) REFERENCES records(provider_slug, provider_data_id) ON DELETE CASCADE,
			FOREIGN KEY(entity_slug, entity_id) REFERENCES genres(provider_slug, provider_data_id),
			PRIMARY KEY(record_slug, record_id, entity_slug, entity_id)
		);

		CREATE TABLE IF NOT EXISTS record_tags (
			record_slug TEXT NOT NULL,
			record_id TEXT NOT NULL,
			entity_slug TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY(record_slug, record_id) REFERENCES records(provider_slug, provider_data_id) ON DELETE CASCADE,
			FOREIGN KEY(entity_slug, entity_id) REFERENCES tags(provider_slug, provider_data_id),
			PRIMARY KEY(record_slug, record_id, entity_slug, entity_id)
		);

		INSERT INTO schema_version (version) VALUES (1);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute v1 migration: %w", err)
	}

	return nil
}

// migrateV2 adds external links and screenshots.
func (s *Store) migrateV2(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS websites (
			record_slug TEXT NOT NULL,
			record_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			FOREIGN KEY(record_slug, record_id) REFERENCES records(provider_slug, provider_data_id) ON DELETE CASCADE,
			PRIMARY KEY(record_slug, record_id, position)
		);

		CREATE TABLE IF NOT EXISTS screenshots (
			record_slug TEXT NOT NULL,
			record_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			FOREIGN KEY(record_slug, record_id) REFERENCES records(provider_slug, provider_data_id) ON DELETE CASCADE,
			PRIMARY KEY(record_slug, record_id, position)
		);

		INSERT INTO schema_version (version) VALUES (2);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute v2 migration: %w", err)
	}

	return nil
}
