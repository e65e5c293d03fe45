package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

const runColumns = `id, quality, output_type, image_count, output_dir, status, started_at, completed_at, time_taken, succeeded_stages, total_stages`

// CreateRun records the start of a pipeline run.
func (s *SQLiteStore) CreateRun(ctx context.Context, nr NewRun) (*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	run := &Run{
		ID:         generateID(),
		Quality:    string(nr.Quality),
		OutputType: string(nr.OutputType),
		ImageCount: nr.ImageCount,
		OutputDir:  nr.OutputDir,
		Status:     RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("quality", run.Quality))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, quality, output_type, image_count, output_dir, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Quality, run.OutputType, run.ImageCount, run.OutputDir, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// RecordStage appends a stage summary to a run.
func (s *SQLiteStore) RecordStage(ctx context.Context, sr StageRun) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, position, success, time_taken, warning_count, error_count, fatal_count)
		 VALUES (?, ?, (SELECT COUNT(*) FROM stage_runs WHERE run_id = ?), ?, ?, ?, ?, ?)`,
		sr.RunID, string(sr.Stage), sr.RunID, sr.Success, sr.TimeTaken, sr.WarningCount, sr.ErrorCount, sr.FatalCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", sr.Stage, err)
	}
	return nil
}

// CompleteRun stores the outcome of a run. The run is completed when every
// stage succeeded and failed otherwise.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, timeTaken float64, succeeded, total int) error {
	if s.db == nil {
		return ErrNotOpen
	}

	status := RunStatusCompleted
	if succeeded < total {
		status = RunStatusFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, time_taken = ?, succeeded_stages = ?, total_stages = ?
		 WHERE id = ?`,
		string(status), formatTime(time.Now()), timeTaken, succeeded, total, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetStageRuns returns the stage summaries of a run in execution order.
func (s *SQLiteStore) GetStageRuns(ctx context.Context, runID string) ([]StageRun, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, success, time_taken, warning_count, error_count, fatal_count
		 FROM stage_runs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StageRun
	for rows.Next() {
		var sr StageRun
		var stage string
		if err := rows.Scan(&sr.RunID, &stage, &sr.Success, &sr.TimeTaken,
			&sr.WarningCount, &sr.ErrorCount, &sr.FatalCount); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		sr.Stage = core.StageID(stage)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stage runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var status, startedAt string
	var completedAt sql.NullString

	if err := sc.Scan(&run.ID, &run.Quality, &run.OutputType, &run.ImageCount, &run.OutputDir, &status,
		&startedAt, &completedAt, &run.TimeTaken, &run.SucceededStages, &run.TotalStages); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	t, err := parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return run, nil
}
