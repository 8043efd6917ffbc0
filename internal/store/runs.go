package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Run records one phase execution (ingest-daily, ingest-sites, reconcile, report).
type Run struct {
	ID           string
	Phase        string
	Source       sql.NullString // input folder, file or output path
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Records      sql.NullInt64
	Sites        sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartRun creates a new run record and returns it.
func (s *Store) StartRun(phase, source string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Phase:     phase,
		StartedAt: time.Now().UTC(),
	}
	if source != "" {
		run.Source = sql.NullString{String: source, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, phase, source, started_at, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.ID, run.Phase, run.Source, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun updates the run with its outcome. A nil runErr marks success.
func (s *Store) CompleteRun(run *Run, records, sites int, runErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Records = sql.NullInt64{Int64: int64(records), Valid: true}
	run.Sites = sql.NullInt64{Int64: int64(sites), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?,
			records = ?,
			sites = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Records, run.Sites, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, phase, source, started_at, finished_at, records, sites, success, error_message
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Phase, &r.Source, &r.StartedAt, &r.FinishedAt,
			&r.Records, &r.Sites, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
