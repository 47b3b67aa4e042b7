package sqlite

import (
	"database/sql"
	"fmt"
)

// migration represents a single database migration
type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of all database migrations
// Each migration should be idempotent and safe to run multiple times
var migrations = []migration{
	{
		version: 1,
		name:    "create_assets_table",
		up: `
			CREATE TABLE IF NOT EXISTS assets (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				salon_id TEXT NOT NULL,
				storage_key TEXT NOT NULL UNIQUE,
				url TEXT NOT NULL,
				original_name TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				category TEXT NOT NULL,
				alt_text TEXT,
				created_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_assets_owner_id
			ON assets(owner_id);

			CREATE INDEX IF NOT EXISTS idx_assets_category
			ON assets(category);

			CREATE INDEX IF NOT EXISTS idx_assets_created_at
			ON assets(created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_assets_url
			ON assets(url);
		`,
	},
	{
		version: 2,
		name:    "create_cms_reference_tables",
		up: `
			CREATE TABLE IF NOT EXISTS blog_posts (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				cover_image_url TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS salon_profiles (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				logo_url TEXT,
				cover_url TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS partner_cards (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				image_url TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS staff_profiles (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				photo_url TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_blog_posts_cover_image_url
			ON blog_posts(cover_image_url);

			CREATE INDEX IF NOT EXISTS idx_salon_profiles_logo_url
			ON salon_profiles(logo_url);

			CREATE INDEX IF NOT EXISTS idx_partner_cards_image_url
			ON partner_cards(image_url);

			CREATE INDEX IF NOT EXISTS idx_staff_profiles_photo_url
			ON staff_profiles(photo_url);
		`,
	},
}

// runMigrations executes all pending migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Run pending migrations
	for _, m := range migrations {
		if m.version <= currentVersion {
			continue // Already applied
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		_, err = tx.Exec(m.up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			m.version,
			m.name,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
