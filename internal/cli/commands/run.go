package commands

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/engine"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/internal/runner"
	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Set       []string
	NoHistory bool
	// Executor replaces the process launcher (tests only)
	Executor runner.Executor
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the photogrammetry pipeline",
		Long: `Run every stage needed for the requested output type, in order.

Stage failures are recorded in the metadata file and never stop the run or
change the exit code. Invalid settings abort before any stage starts.

Progress is written to <status>/status.json after every change and the
step-by-step report to <metadata>/metadata.json after every stage.`,
		Example: `  # Textured mesh at medium quality
  meshflow run --bin ./aliceVision/bin --input ./images --output ./out \
    --quality MEDIUM --output-type TEXTURED_MESH --image-count 48 --status ./out

  # Deliver results according to a manifest
  meshflow run --results results.json

  # Override one catalog option
  meshflow run --set depth_map.downscale=4`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().String("bin", "", "Folder containing the AliceVision binaries")
	cmd.Flags().String("input", "", "Folder containing the input images")
	cmd.Flags().String("output", "", "Folder receiving stage outputs")
	addQualityFlag(cmd)
	addOutputTypeFlag(cmd)
	cmd.Flags().Int("image-count", 0, "Number of input images")
	cmd.Flags().String("status", "", "Folder receiving status.json")
	cmd.Flags().String("metadata", "", "Folder receiving metadata.json (default: status folder)")
	cmd.Flags().String("results", "", "Results manifest naming where deliverables go")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Override a stage option as stage.option=value (repeatable)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the history database")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, r, logger := cc.Cfg, cc.Renderer, cc.Logger

	if err := cfg.ValidateRun(); err != nil {
		return err
	}
	if err := cfg.ValidateDirectories(); err != nil {
		// Stages fail and report it; the run still produces its reports
		logger.Warn("input folders are not usable", "error", err)
	}

	overrides, err := mergeOverrides(cfg.ParameterOverrides, opts.Set)
	if err != nil {
		return err
	}

	plan, err := engine.BuildPlan(engine.Request{
		Layout: locations.Layout{
			BinDir:    cfg.BinDir,
			InputDir:  cfg.InputDir,
			OutputDir: cfg.OutputDir,
		},
		Quality:      cfg.Quality,
		OutputType:   cfg.OutputType,
		ImageCount:   cfg.ImageCount,
		ManifestPath: cfg.ResultsFile,
		Overrides:    overrides,
	})
	if err != nil {
		return err
	}

	var history state.Store
	if !opts.NoHistory {
		store, err := openHistory(cfg, logger)
		if err != nil {
			logger.Warn("running without history", "error", err)
		} else {
			defer func() { _ = store.Close() }()
			history = store
		}
	}

	mode := r.EffectiveMode()
	structured := mode == output.ModeJSON || mode == output.ModeYAML

	eng := engine.New(engine.Config{
		Executor:    opts.Executor,
		StatusDir:   cfg.StatusDir,
		MetadataDir: cfg.MetadataDirOrDefault(),
		History:     history,
		Logger:      logger,
		OnStage: func(id core.StageID, rec core.StageRecord) {
			if structured {
				return
			}
			st := "success"
			if !rec.Report.Success {
				st = "failed"
			}
			r.StatusLine(stageTitle(id), st, fmt.Sprintf("(%.1fs)", rec.TimeTaken))
		},
	})

	if !structured {
		r.Header(1, fmt.Sprintf("Running %s pipeline (%s, %d images)", plan.OutputType, plan.Quality, plan.ImageCount))
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	meta := eng.Execute(ctx, plan)

	switch mode {
	case output.ModeJSON:
		return r.JSON(meta)
	case output.ModeYAML:
		return r.YAML(meta)
	}

	r.Println("")
	succeeded := meta.SucceededStages()
	summary := fmt.Sprintf("%d/%d stages succeeded in %.1fs", succeeded, len(plan.Stages), meta.GlobalReport.TimeTaken)
	if succeeded == len(plan.Stages) {
		r.Success(summary)
	} else {
		r.Warning(summary)
	}
	if meta.GlobalReport.ManifestError != "" {
		r.Warning("results manifest not applied: " + meta.GlobalReport.ManifestError)
	}
	r.Muted("status:   " + eng.StatusPath())
	r.Muted("metadata: " + eng.MetadataPath())
	return nil
}

// mergeOverrides combines configured overrides with --set values. --set
// wins for the same stage option.
func mergeOverrides(base map[string]map[string]string, set []string) (map[string]map[string]string, error) {
	merged := make(map[string]map[string]string, len(base))
	for stage, opts := range base {
		merged[stage] = maps.Clone(opts)
	}
	for _, s := range set {
		stage, option, value, err := parseSetFlag(s)
		if err != nil {
			return nil, err
		}
		if merged[stage] == nil {
			merged[stage] = make(map[string]string)
		}
		merged[stage][option] = value
	}
	return merged, nil
}

// parseSetFlag splits "stage.option=value".
func parseSetFlag(s string) (stage, option, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", "", fmt.Errorf("%w: --set %q: want stage.option=value", core.ErrConfiguration, s)
	}
	stage, option, ok = strings.Cut(key, ".")
	if !ok || stage == "" || option == "" {
		return "", "", "", fmt.Errorf("%w: --set %q: want stage.option=value", core.ErrConfiguration, s)
	}
	return stage, option, value, nil
}
