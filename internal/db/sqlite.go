package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sublate/backend/internal/auth"
	"github.com/sublate/backend/internal/db/models"
)

// Database wraps the SQLite handle shared by the API handlers and the job
// queue.
type Database struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
// WAL keeps the queue's writes from blocking API reads.
func NewSQLite(path string) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	// Subtitle runs, worked off by the job queue. params and result hold
	// JSON-encoded run parameters and the finished run's report.
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		media_path TEXT NOT NULL,
		params TEXT NOT NULL,
		progress REAL DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS translation_presets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		prompt TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	// The queue worker and the dashboard both filter on status.
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
}

func (d *Database) migrate() error {
	for _, ddl := range tables {
		if _, err := d.db.Exec(ddl); err != nil {
			return err
		}
	}
	return nil
}

// EnsureAdmin creates the initial admin account when no admin exists yet.
func (d *Database) EnsureAdmin(username, password string) error {
	n, err := d.CountAdmins()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.CreateUser(username, hash, models.RoleAdmin)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DB exposes the underlying handle for the job queue, which manages its
// own statements.
func (d *Database) DB() *sql.DB {
	return d.db
}
