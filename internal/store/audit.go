package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses recorded in the ingest_runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one row of the ingest_runs audit table.
type Run struct {
	ID              string
	StartedAt       time.Time
	CompletedAt     sql.NullTime
	SetsFetched     int
	SetsSkipped     int
	CardsIngested   int
	SpeciesIngested int
	Status          string
	Error           string
}

// BeginRun records the start of an ingest run with zeroed counts.
func (s *Store) BeginRun(runID string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ingest_runs
			(run_id, started_at, completed_at, sets_fetched, sets_skipped,
			 cards_ingested, species_ingested, status, error)
		VALUES (?, ?, NULL, 0, 0, 0, 0, ?, '')`,
		runID, startedAt, RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun replaces the audit row with the run's final counts and status.
func (s *Store) FinishRun(run Run) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ingest_runs
			(run_id, started_at, completed_at, sets_fetched, sets_skipped,
			 cards_ingested, species_ingested, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.CompletedAt, run.SetsFetched, run.SetsSkipped,
		run.CardsIngested, run.SpeciesIngested, run.Status, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}
	return nil
}

// RecentRuns returns the newest audit rows, most recent first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, started_at, completed_at, sets_fetched, sets_skipped,
		       cards_ingested, species_ingested, status, error
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.StartedAt, &run.CompletedAt, &run.SetsFetched,
			&run.SetsSkipped, &run.CardsIngested, &run.SpeciesIngested,
			&run.Status, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingest runs: %w", err)
	}
	return runs, nil
}
