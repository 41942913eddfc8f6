package storage

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/agentfusion/contextengine/internal/model"
)

// ResetBootstrapProgress clears all progress rows. Called before a full
// rebuild, never before an incremental refresh.
func (s *Store) ResetBootstrapProgress() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec("DELETE FROM bootstrap_progress")
	if err != nil {
		return fmt.Errorf("failed to reset bootstrap progress: %w", err)
	}
	return nil
}

// EnqueueBootstrapPaths inserts a PENDING row for every path not already
// tracked. Existing rows are left untouched, so a restart resumes rather
// than re-enqueuing finished work.
func (s *Store) EnqueueBootstrapPaths(relPaths []string) error {
	if len(relPaths) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	builder := sq.Insert("bootstrap_progress").
		Columns("rel_path", "enqueued_at_ms", "state", "attempts").
		Options("OR IGNORE")
	for _, p := range relPaths {
		builder = builder.Values(p, model.NowMs(), string(model.BootstrapPending), 0)
	}
	_, err := builder.RunWith(s.db).Exec()
	if err != nil {
		return fmt.Errorf("failed to enqueue bootstrap paths: %w", err)
	}
	return nil
}

// ResetInProgress reverts any IN_PROGRESS row back to PENDING. Called on
// startup: a crash mid-scan must not leave paths permanently stuck.
func (s *Store) ResetInProgress() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.Exec(
		"UPDATE bootstrap_progress SET state = ? WHERE state = ?",
		string(model.BootstrapPending), string(model.BootstrapInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to reset in-progress bootstrap rows: %w", err)
	}
	return nil
}

// ClaimNextPending atomically marks up to n PENDING paths IN_PROGRESS and
// returns them, so concurrent workers never claim the same path twice.
func (s *Store) ClaimNextPending(n int) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		"SELECT rel_path FROM bootstrap_progress WHERE state = ? ORDER BY enqueued_at_ms LIMIT ?",
		string(model.BootstrapPending), n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending paths: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, tx.Commit()
	}

	placeholders, args := inClause(paths)
	if _, err := tx.Exec(fmt.Sprintf(
		"UPDATE bootstrap_progress SET state = ? WHERE rel_path IN (%s)", placeholders,
	), append([]interface{}{string(model.BootstrapInProgress)}, args...)...); err != nil {
		return nil, fmt.Errorf("failed to claim pending paths: %w", err)
	}

	return paths, tx.Commit()
}

// MarkBootstrapDone transitions relPath to DONE.
func (s *Store) MarkBootstrapDone(relPath string) error {
	return s.setBootstrapState(relPath, model.BootstrapDone, false)
}

// MarkBootstrapFailed transitions relPath to FAILED and increments attempts.
func (s *Store) MarkBootstrapFailed(relPath string) error {
	return s.setBootstrapState(relPath, model.BootstrapFailed, true)
}

func (s *Store) setBootstrapState(relPath string, state model.BootstrapState, incrementAttempts bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := "UPDATE bootstrap_progress SET state = ?"
	args := []interface{}{string(state)}
	if incrementAttempts {
		query += ", attempts = attempts + 1"
	}
	query += " WHERE rel_path = ?"
	args = append(args, relPath)

	_, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to set bootstrap state for %s: %w", relPath, err)
	}
	return nil
}

// BootstrapCounts reports how many paths are in each state, for progress
// reporting during a scan.
func (s *Store) BootstrapCounts() (map[model.BootstrapState]int, error) {
	rows, err := s.db.Query("SELECT state, COUNT(*) FROM bootstrap_progress GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count bootstrap states: %w", err)
	}
	defer rows.Close()

	counts := map[model.BootstrapState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[model.BootstrapState(state)] = n
	}
	return counts, rows.Err()
}
