package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/api"
	"github.com/leapstack-labs/meshflow/internal/state"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run status, metadata and history over HTTP",
		Long: `Start a read-only HTTP API:

  GET /api/health
  GET /api/status           status.json of the configured run
  GET /api/status/events    server-sent events, one per status change
  GET /api/metadata         metadata.json of the configured run
  GET /api/stages           stages and dependencies (?output_type=)
  GET /api/runs             recorded runs (?limit=)
  GET /api/runs/{id}        one run with its stage summaries

The server stops on interrupt.`,
		Example: `  meshflow serve --status ./out
  meshflow serve --status ./out --port 9000`,
		RunE: runServe,
	}
	cmd.Flags().String("status", "", "Folder holding status.json")
	cmd.Flags().String("metadata", "", "Folder holding metadata.json (default: status folder)")
	cmd.Flags().String("host", "", "Address to listen on")
	cmd.Flags().Int("port", 0, "Port to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg
	if cfg.StatusDir == "" {
		return fmt.Errorf("no status folder given: set --status")
	}

	var history state.Store
	store, err := openHistory(cfg, cc.Logger)
	if err != nil {
		cc.Logger.Warn("serving without history", "error", err)
	} else {
		defer func() { _ = store.Close() }()
		history = store
	}

	srv := api.NewServer(api.Config{
		StatusDir:   cfg.StatusDir,
		MetadataDir: cfg.MetadataDirOrDefault(),
		History:     history,
		Host:        cfg.Serve.Host,
		Port:        cfg.Serve.Port,
		Logger:      cc.Logger,
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return srv.Serve(ctx)
}
