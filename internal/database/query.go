package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `
	id, job, root, mode, dry_run, started_at, finished_at, status,
	directories, files, total_bytes,
	deleted_files, deleted_directories, deleted_bytes,
	warning_count, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var r Run
	var errMsg sql.NullString
	err := s.Scan(
		&r.ID, &r.Job, &r.Root, &r.Mode, &r.DryRun, &r.StartedAt, &r.FinishedAt, &r.Status,
		&r.Directories, &r.Files, &r.TotalBytes,
		&r.DeletedFiles, &r.DeletedDirectories, &r.DeletedBytes,
		&r.WarningCount, &errMsg,
	)
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return r, err
}

// GetRecentRuns returns up to limit runs, newest first. An empty job returns
// runs of every job.
func (d *RunDB) GetRecentRuns(job string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its warnings.
func (d *RunDB) GetRun(id string) (*Run, error) {
	r, err := scanRun(d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`SELECT message FROM warnings WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		r.Warnings = append(r.Warnings, msg)
	}
	return &r, rows.Err()
}

// GetEntries returns the entries of a run in visit order, optionally only
// those with the given action.
func (d *RunDB) GetEntries(runID, action string) ([]Entry, error) {
	query := `SELECT seq, virtual_path, object_type, size, action FROM entries WHERE run_id = ?`
	args := []any{runID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY seq`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var size sql.NullInt64
		if err := rows.Scan(&e.Seq, &e.VirtualPath, &e.ObjectType, &size, &e.Action); err != nil {
			return nil, err
		}
		if size.Valid {
			v := size.Int64
			e.Size = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetActionCounts returns how many entries of a run ended with each action.
func (d *RunDB) GetActionCounts(runID string) (map[string]int, error) {
	rows, err := d.db.Query(`
	SELECT action, COUNT(*)
	FROM entries
	WHERE run_id = ?
	GROUP BY action
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}
	return counts, rows.Err()
}

// RunStats aggregates the runs of a time window.
type RunStats struct {
	Runs               int            `json:"runs"`
	FailedRuns         int            `json:"failed_runs"`
	DryRuns            int            `json:"dry_runs"`
	DeletedFiles       int            `json:"deleted_files"`
	DeletedDirectories int            `json:"deleted_directories"`
	DeletedBytes       int64          `json:"deleted_bytes"`
	Warnings           int            `json:"warnings"`
	ByJob              map[string]int `json:"by_job"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            time.Time      `json:"end_date"`
}

// GetRunStats summarizes the runs started in the last days days. Deletions of
// dry runs are not counted.
func (d *RunDB) GetRunStats(days int) (*RunStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)
	stats := &RunStats{StartDate: since, EndDate: now, ByJob: make(map[string]int)}

	err := d.db.QueryRow(`
	SELECT
		COUNT(*),
		COUNT(CASE WHEN status = ? THEN 1 END),
		COUNT(CASE WHEN dry_run = 1 THEN 1 END),
		COALESCE(SUM(CASE WHEN dry_run = 0 THEN deleted_files END), 0),
		COALESCE(SUM(CASE WHEN dry_run = 0 THEN deleted_directories END), 0),
		COALESCE(SUM(CASE WHEN dry_run = 0 THEN deleted_bytes END), 0),
		COALESCE(SUM(warning_count), 0)
	FROM runs
	WHERE started_at >= ?
	`, StatusFailed, since).Scan(
		&stats.Runs, &stats.FailedRuns, &stats.DryRuns,
		&stats.DeletedFiles, &stats.DeletedDirectories, &stats.DeletedBytes,
		&stats.Warnings,
	)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`SELECT job, COUNT(*) FROM runs WHERE started_at >= ? GROUP BY job`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var job string
		var count int
		if err := rows.Scan(&job, &count); err != nil {
			return nil, err
		}
		stats.ByJob[job] = count
	}
	return stats, rows.Err()
}

// DeleteOldRuns removes runs started before now minus olderThan, with their
// entries and warnings. It returns the number of runs removed.
func (d *RunDB) DeleteOldRuns(olderThan time.Duration) (n int64, err error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"entries", "warnings"} {
		_, err = tx.Exec(`DELETE FROM `+table+` WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
	}
	result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if n, err = result.RowsAffected(); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
