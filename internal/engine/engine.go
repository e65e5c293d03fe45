// Package engine runs a resolved pipeline plan stage by stage.
//
// Stages run strictly in sequence. After each stage the engine verifies its
// artifacts, merges the stage report into the run metadata and persists it.
// A failed stage never stops the run and Execute never returns an error:
// every outcome is recorded in the status and metadata files and, when a
// history store is configured, in the run history.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/meshflow/internal/deliver"
	"github.com/leapstack-labs/meshflow/internal/report"
	"github.com/leapstack-labs/meshflow/internal/runner"
	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// StageObserver is told about every finished stage.
type StageObserver func(id core.StageID, rec core.StageRecord)

// Config holds engine configuration.
type Config struct {
	// Executor launches stage binaries (defaults to runner.ExecExecutor)
	Executor runner.Executor
	// StatusDir receives status.json
	StatusDir string
	// MetadataDir receives metadata.json (defaults to StatusDir)
	MetadataDir string
	// History records runs (optional)
	History state.Store
	// OnStage is called after each stage is verified (optional)
	OnStage StageObserver
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine orchestrates pipeline runs.
type Engine struct {
	executor    runner.Executor
	statusDir   string
	metadataDir string
	history     state.Store
	onStage     StageObserver
	logger      *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metadataDir := cfg.MetadataDir
	if metadataDir == "" {
		metadataDir = cfg.StatusDir
	}
	return &Engine{
		executor:    cfg.Executor,
		statusDir:   cfg.StatusDir,
		metadataDir: metadataDir,
		history:     cfg.History,
		onStage:     cfg.OnStage,
		logger:      logger,
	}
}

// StatusPath returns where the engine writes live status.
func (e *Engine) StatusPath() string {
	return filepath.Join(e.statusDir, status.StatusFileName)
}

// MetadataPath returns where the engine writes run metadata.
func (e *Engine) MetadataPath() string {
	return filepath.Join(e.metadataDir, status.MetadataFileName)
}

// Execute runs every stage of plan and returns the final metadata.
func (e *Engine) Execute(ctx context.Context, plan Plan) *core.RunMetadata {
	start := time.Now()
	logger := e.logger.With("quality", plan.Quality, "output_type", plan.OutputType)
	logger.Info("starting run", "stages", len(plan.Stages), "images", plan.ImageCount)

	statusStore := status.NewStatusStore(e.statusDir, e.logger)
	metadataStore := status.NewMetadataStore(e.metadataDir, e.logger)
	meta := core.NewRunMetadata()
	statusStore.Init()
	metadataStore.Write(meta)

	runID := e.createRun(ctx, plan)

	logDir := plan.Layout.LogDir()
	stageRunner := runner.New(runner.Config{Executor: e.executor, LogDir: logDir, Logger: e.logger})
	collector := report.NewCollector(logDir, e.logger)

	for _, id := range plan.Stages {
		spec := plan.Specs[id]
		stageStart := time.Now()

		logger.Info("running stage", "stage", id)
		stageRunner.Run(ctx, spec, plan.Params.Stage(id), statusStore, plan.ImageCount)
		rep := collector.Collect(spec)

		rec := core.StageRecord{TimeTaken: time.Since(stageStart).Seconds(), Report: rep}
		meta.StepByStepReport[id] = rec
		metadataStore.Write(meta)

		if rep.Success {
			logger.Info("stage finished", "stage", id, "seconds", rec.TimeTaken)
		} else {
			logger.Warn("stage verification failed", "stage", id, "seconds", rec.TimeTaken)
		}
		e.recordStage(ctx, runID, id, rec)
		if e.onStage != nil {
			e.onStage(id, rec)
		}
	}

	meta.GlobalReport.TimeTaken = time.Since(start).Seconds()

	outcome := deliver.Finalize(plan.Specs, plan.Layout.OutputDir, plan.ManifestPath, e.logger)
	meta.GlobalReport.OutputFileReport = outcome.Report
	meta.GlobalReport.ResultsJSONFile = outcome.ManifestApplied
	meta.GlobalReport.ManifestError = outcome.ManifestError
	metadataStore.Write(meta)

	e.completeRun(ctx, runID, meta, len(plan.Stages))
	logger.Info("run completed",
		"seconds", meta.GlobalReport.TimeTaken,
		"succeeded_stages", meta.SucceededStages(),
		"total_stages", len(plan.Stages))
	return meta
}

func (e *Engine) createRun(ctx context.Context, plan Plan) string {
	if e.history == nil {
		return ""
	}
	run, err := e.history.CreateRun(ctx, state.NewRun{
		Quality:    plan.Quality,
		OutputType: plan.OutputType,
		ImageCount: plan.ImageCount,
		OutputDir:  plan.Layout.OutputDir,
	})
	if err != nil {
		e.logger.Warn("failed to record run in history", "error", err)
		return ""
	}
	e.logger.Debug("created run", "run_id", run.ID)
	return run.ID
}

func (e *Engine) recordStage(ctx context.Context, runID string, id core.StageID, rec core.StageRecord) {
	if runID == "" {
		return
	}
	if err := e.history.RecordStage(context.WithoutCancel(ctx), state.StageRunFromRecord(runID, id, rec)); err != nil {
		e.logger.Warn("failed to record stage in history", "run_id", runID, "stage", id, "error", err)
	}
}

func (e *Engine) completeRun(ctx context.Context, runID string, meta *core.RunMetadata, total int) {
	if runID == "" {
		return
	}
	if err := e.history.CompleteRun(context.WithoutCancel(ctx), runID, meta.GlobalReport.TimeTaken, meta.SucceededStages(), total); err != nil {
		e.logger.Warn("failed to complete run in history", "run_id", runID, "error", err)
	}
}
