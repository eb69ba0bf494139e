// Package storage implements the SQLite-based persistence layer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite configuration options.
type Config struct {
	Path        string
	JournalMode string // WAL, DELETE, TRUNCATE
	Synchronous string // OFF, NORMAL, FULL
	CacheSize   int    // in KB (negative for KB, positive for pages)
	BusyTimeout int    // in milliseconds
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Path:        filepath.Join(dataDir, "firebridge.db"),
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSize:   -8000, // 8MB
		BusyTimeout: 5000,
	}
}

// DB wraps the SQLite database connection.
type DB struct {
	conn   *sql.DB
	config Config
}

// New opens the database and creates the schema.
func New(config Config) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		config.Path,
		config.JournalMode,
		config.Synchronous,
		config.BusyTimeout,
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:   conn,
		config: config,
	}

	if err := db.applyPragmas(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) applyPragmas() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = %d", db.config.CacheSize),
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema() error {
	schema := `
	-- Analytics events
	CREATE TABLE IF NOT EXISTS analytics_events (
		id BLOB(16) PRIMARY KEY,
		name TEXT NOT NULL,
		params JSON NOT NULL,
		user_id TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_name_time ON analytics_events(name, timestamp);

	-- Analytics user properties
	CREATE TABLE IF NOT EXISTS user_properties (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Crash reports
	CREATE TABLE IF NOT EXISTS crash_reports (
		id BLOB(16) PRIMARY KEY,
		message TEXT NOT NULL,
		breadcrumbs JSON NOT NULL,
		custom_keys JSON NOT NULL,
		user_id TEXT,
		created_at INTEGER NOT NULL,
		sent_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_crash_reports_unsent ON crash_reports(created_at) WHERE sent_at IS NULL;
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.config.Path
}

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}
