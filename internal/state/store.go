// Package state records the history of pipeline runs in SQLite.
// It tracks each run's configuration and outcome and a summary of every
// stage it executed.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed marks a finished run where at least one stage failed
	// verification.
	RunStatusFailed RunStatus = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID              string     `json:"id"`
	Quality         string     `json:"quality"`
	OutputType      string     `json:"output_type"`
	ImageCount      int        `json:"image_count"`
	OutputDir       string     `json:"output_dir"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TimeTaken       float64    `json:"time_taken"`
	SucceededStages int        `json:"succeeded_stages"`
	TotalStages     int        `json:"total_stages"`
}

// NewRun describes a run about to start.
type NewRun struct {
	Quality    core.Quality
	OutputType core.OutputType
	ImageCount int
	OutputDir  string
}

// StageRun summarizes one executed stage.
type StageRun struct {
	RunID        string       `json:"run_id"`
	Stage        core.StageID `json:"stage"`
	Success      bool         `json:"success"`
	TimeTaken    float64      `json:"time_taken"`
	WarningCount int          `json:"warning_count"`
	ErrorCount   int          `json:"error_count"`
	FatalCount   int          `json:"fatal_count"`
}

// StageRunFromRecord builds the stage summary of a step-by-step entry.
func StageRunFromRecord(runID string, id core.StageID, rec core.StageRecord) StageRun {
	return StageRun{
		RunID:        runID,
		Stage:        id,
		Success:      rec.Report.Success,
		TimeTaken:    rec.TimeTaken,
		WarningCount: len(rec.Report.LogReport.WarningLines),
		ErrorCount:   len(rec.Report.LogReport.ErrorLines),
		FatalCount:   len(rec.Report.LogReport.FatalLines),
	}
}

// Store persists run history.
type Store interface {
	CreateRun(ctx context.Context, run NewRun) (*Run, error)
	RecordStage(ctx context.Context, sr StageRun) error
	CompleteRun(ctx context.Context, id string, timeTaken float64, succeeded, total int) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetStageRuns(ctx context.Context, runID string) ([]StageRun, error)
	Close() error
}
