package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs",
		Long: `List the most recent runs from the history database, newest first.
Given a run ID, show that run and the summary of each of its stages.`,
		Example: `  meshflow history
  meshflow history --limit 5 --format json
  meshflow history 0b6f3c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

// RunDetail is the structured output for a single run.
type RunDetail struct {
	Run    *state.Run       `json:"run"`
	Stages []state.StageRun `json:"stages"`
}

func runHistory(cmd *cobra.Command, args []string, opts *HistoryOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	store, err := openHistory(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		return showRun(cmd.Context(), cc.Renderer, store, args[0])
	}
	if opts.Limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", opts.Limit)
	}
	return listRuns(cmd.Context(), cc.Renderer, store, opts.Limit)
}

func listRuns(ctx context.Context, r *output.Renderer, store state.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []*state.Run{}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(runs)
	case output.ModeYAML:
		return r.YAML(runs)
	}

	if len(runs) == 0 {
		r.Muted("no runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Quality,
			run.OutputType,
			fmt.Sprint(run.ImageCount),
			string(run.Status),
			fmt.Sprintf("%d/%d", run.SucceededStages, run.TotalStages),
			fmt.Sprintf("%.1fs", run.TimeTaken),
		})
	}
	r.Table([]string{"ID", "Started", "Quality", "Output", "Images", "Status", "Stages", "Time"}, rows)
	return nil
}

func showRun(ctx context.Context, r *output.Renderer, store state.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	stages, err := store.GetStageRuns(ctx, id)
	if err != nil {
		return err
	}
	if stages == nil {
		stages = []state.StageRun{}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(RunDetail{Run: run, Stages: stages})
	case output.ModeYAML:
		return r.YAML(RunDetail{Run: run, Stages: stages})
	}

	r.Header(1, "Run "+run.ID)
	r.Printf("%s %s, %d images, %s\n", run.Quality, run.OutputType, run.ImageCount, run.Status)
	r.Muted("output: " + run.OutputDir)
	r.Println("")
	for _, s := range stages {
		st := "success"
		if !s.Success {
			st = "failed"
		}
		r.StatusLine(stageTitle(s.Stage), st,
			fmt.Sprintf("(%.1fs, %d warnings, %d errors, %d fatal)", s.TimeTaken, s.WarningCount, s.ErrorCount, s.FatalCount))
	}
	return nil
}
