package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/meshflow/internal/cli/config"
	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := getConfig()
	mode, err := output.ParseMode(cfg.Format)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// getConfig returns the current configuration, or defaults when no
// configuration was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		HistoryPath: config.DefaultHistoryPath,
		Format:      config.DefaultFormat,
		Serve: config.ServeConfig{
			Host: config.DefaultServeHost,
			Port: config.DefaultServePort,
		},
	}
}

// openHistory opens the run history database.
func openHistory(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.HistoryPath); err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

// signalContext returns a context cancelled on interrupt or termination.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

var titleCaser = cases.Title(language.English)

// stageTitle turns a stage id into a display name: "depth_map" -> "Depth Map".
func stageTitle(id core.StageID) string {
	return titleCaser.String(strings.ReplaceAll(string(id), "_", " "))
}

// Flag helpers shared by commands that take run settings. Values only
// reach the configuration when set, so config files and env vars apply
// otherwise.

func addQualityFlag(cmd *cobra.Command) {
	cmd.Flags().String("quality", "", "Quality tier: DRAFT, MEDIUM or HIGH")
	_ = cmd.RegisterFlagCompletionFunc("quality", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return qualityNames(), cobra.ShellCompDirectiveNoFileComp
	})
}

func addOutputTypeFlag(cmd *cobra.Command) {
	cmd.Flags().String("output-type", "", "Output type: POINT_CLOUD, MESH, FILTERED_MESH or TEXTURED_MESH")
	_ = cmd.RegisterFlagCompletionFunc("output-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return outputTypeNames(), cobra.ShellCompDirectiveNoFileComp
	})
}

func qualityNames() []string {
	var names []string
	for _, q := range core.Qualities() {
		names = append(names, string(q))
	}
	return names
}

func outputTypeNames() []string {
	var names []string
	for _, t := range core.OutputTypes() {
		names = append(names, string(t))
	}
	return names
}
