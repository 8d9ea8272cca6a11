package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// RunDB stores the history of crawler runs and the entries each one logged.
type RunDB struct {
	db *sql.DB
}

// Run is one finished traversal of a job.
type Run struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Root       string    `json:"root"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`

	Directories        int   `json:"directories"`
	Files              int   `json:"files"`
	TotalBytes         int64 `json:"total_bytes"`
	DeletedFiles       int   `json:"deleted_files"`
	DeletedDirectories int   `json:"deleted_directories"`
	DeletedBytes       int64 `json:"deleted_bytes"`

	WarningCount int      `json:"warning_count"`
	Warnings     []string `json:"warnings,omitempty"` // only loaded by GetRun
	Error        string   `json:"error,omitempty"`
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Entry is one statistics line of a run, in visit order.
type Entry struct {
	Seq         int    `json:"seq"`
	VirtualPath string `json:"path"`
	ObjectType  string `json:"type"`
	Size        *int64 `json:"size,omitempty"`
	Action      string `json:"action"`
}

// NewRunDB opens (creating if needed) the history database at dbPath.
func NewRunDB(dbPath string) (*RunDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto makes DATETIME columns scan back into time.Time.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	rdb := &RunDB{db: db}
	if err = rdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return rdb, nil
}

func (d *RunDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		root TEXT NOT NULL,
		mode TEXT NOT NULL,
		dry_run INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		status TEXT NOT NULL,

		directories INTEGER NOT NULL DEFAULT 0,
		files INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		deleted_files INTEGER NOT NULL DEFAULT 0,
		deleted_directories INTEGER NOT NULL DEFAULT 0,
		deleted_bytes INTEGER NOT NULL DEFAULT 0,

		warning_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job);

	CREATE TABLE IF NOT EXISTS entries (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		virtual_path TEXT NOT NULL,
		object_type TEXT NOT NULL,
		size INTEGER,
		action TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_action ON entries(run_id, action);

	CREATE TABLE IF NOT EXISTS warnings (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordRun stores run with its entries and warnings in one transaction. An
// empty run.ID is filled with a new UUID.
func (d *RunDB) RecordRun(run *Run, entries []Entry) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusSucceeded
	}
	run.WarningCount = len(run.Warnings)

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
	INSERT INTO runs (
		id, job, root, mode, dry_run, started_at, finished_at, status,
		directories, files, total_bytes,
		deleted_files, deleted_directories, deleted_bytes,
		warning_count, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Job, run.Root, run.Mode, run.DryRun,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status,
		run.Directories, run.Files, run.TotalBytes,
		run.DeletedFiles, run.DeletedDirectories, run.DeletedBytes,
		run.WarningCount, nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err = insertEntries(tx, run.ID, entries); err != nil {
		return err
	}
	if err = insertWarnings(tx, run.ID, run.Warnings); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEntries(tx *sql.Tx, runID string, entries []Entry) error {
	stmt, err := tx.Prepare(`
	INSERT INTO entries (run_id, seq, virtual_path, object_type, size, action)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entries: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var size sql.NullInt64
		if e.Size != nil {
			size = sql.NullInt64{Int64: *e.Size, Valid: true}
		}
		if _, err := stmt.Exec(runID, i, e.VirtualPath, e.ObjectType, size, e.Action); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.VirtualPath, err)
		}
	}
	return nil
}

func insertWarnings(tx *sql.Tx, runID string, warnings []string) error {
	for i, w := range warnings {
		if _, err := tx.Exec(`INSERT INTO warnings (run_id, seq, message) VALUES (?, ?, ?)`, runID, i, w); err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database connection
func (d *RunDB) Close() error {
	return d.db.Close()
}

// Vacuum reclaims space after large prunes.
func (d *RunDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// DatabaseStats describes the history database itself.
type DatabaseStats struct {
	Runs      int64     `json:"runs"`
	Entries   int64     `json:"entries"`
	SizeBytes int64     `json:"size_bytes"`
	OldestRun time.Time `json:"oldest_run,omitempty"`
	NewestRun time.Time `json:"newest_run,omitempty"`
}

func (d *RunDB) GetDatabaseStats() (*DatabaseStats, error) {
	s := &DatabaseStats{}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&s.Runs); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&s.Entries); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	s.SizeBytes = pageCount * pageSize

	if s.Runs == 0 {
		return s, nil
	}
	// Direct column reads keep the DATETIME type, so no string parsing is needed.
	if err := d.db.QueryRow("SELECT started_at FROM runs ORDER BY started_at ASC LIMIT 1").Scan(&s.OldestRun); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT started_at FROM runs ORDER BY started_at DESC LIMIT 1").Scan(&s.NewestRun); err != nil {
		return nil, err
	}
	return s, nil
}
