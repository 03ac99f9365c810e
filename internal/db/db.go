package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diverhq/diver/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// AssetsDirName is the subdirectory of baseDir where large payloads
// (captured images and attachments) are persisted by the pipeline.
const AssetsDirName = "assets"

// Init initializes the SQLite item store at baseDir/diver.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.diver.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create assets subdirectory for persisted payload blobs
	assetsDir := filepath.Join(baseDir, AssetsDirName)
	if err := os.MkdirAll(assetsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}
	_ = os.Chmod(assetsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "diver.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// AssetsDir returns the payload asset directory under baseDir.
func AssetsDir(baseDir string) string {
	return filepath.Join(baseDir, AssetsDirName)
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS items (
		  id                 TEXT PRIMARY KEY,
		  url                TEXT,
		  title              TEXT,
		  description_text   TEXT,
		  style_tags_json    TEXT,
		  categories_json    TEXT,
		  purposes_json      TEXT,
		  processing_log_json TEXT,
		  item_type          TEXT NOT NULL,
		  status             TEXT NOT NULL,
		  source             TEXT,
		  attribution_id     TEXT,
		  wrapped_link       TEXT,
		  master_capture_id  TEXT,
		  session_id         TEXT,
		  cover_image_path   TEXT,
		  latitude           REAL,
		  longitude          REAL,
		  location_name      TEXT,
		  location_address   TEXT,
		  price              TEXT,
		  payload_ref        TEXT,
		  transcription      TEXT,
		  themes_json        TEXT,
		  media_type         TEXT,
		  file_size          INTEGER NOT NULL DEFAULT 0,
		  filename           TEXT,
		  reference_count    INTEGER NOT NULL DEFAULT 0,
		  created_at         INTEGER NOT NULL,
		  updated_at         INTEGER NOT NULL,
		  last_processed_at  INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_items_status_updated
		ON items(status, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_items_master_capture
		ON items(master_capture_id)
		WHERE master_capture_id IS NOT NULL;

		CREATE INDEX IF NOT EXISTS idx_items_session
		ON items(session_id)
		WHERE session_id IS NOT NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
