package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/internal/watch"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Watch bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show the live status of a run",
		Long: `Render a status.json file. The path may name the file or the folder that
holds it; without a path the configured status folder is used.

With --watch the status is rendered again every time the file changes,
until interrupted.`,
		Example: `  # Status of the configured run
  meshflow status

  # Follow a run
  meshflow status ./out --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, opts)
		},
	}
	cmd.Flags().String("status", "", "Folder holding status.json")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-render on every change")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string, opts *StatusOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	dir := cc.Cfg.StatusDir
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := resolveReportFile(dir, status.StatusFileName, "--status")
	if err != nil {
		return err
	}

	if !opts.Watch {
		st, err := status.ReadStatus(path)
		if err != nil {
			return err
		}
		return renderStatus(cc.Renderer, st)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return watchStatus(ctx, cc, path)
}

// watchStatus renders the status file now and after each change.
func watchStatus(ctx context.Context, cc *CommandContext, path string) error {
	n := watch.NewNotifier()
	updates := n.Subscribe()
	defer n.Unsubscribe(updates)

	w := watch.NewWatcher(filepath.Dir(path), []string{filepath.Base(path)}, n, cc.Logger)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	render := func() {
		st, err := status.ReadStatus(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				cc.Renderer.Warning(err.Error())
			}
			cc.Renderer.Muted("waiting for " + path)
			return
		}
		if cc.Renderer.EffectiveMode() == output.ModeText {
			cc.Renderer.Muted(time.Now().Format(time.TimeOnly))
		}
		if err := renderStatus(cc.Renderer, st); err != nil {
			cc.Logger.Warn("failed to render status", "error", err)
		}
	}

	render()
	for {
		select {
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case <-updates:
			render()
		}
	}
}

func renderStatus(r *output.Renderer, st core.RunStatus) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(st)
	case output.ModeYAML:
		return r.YAML(st)
	}

	started := 0
	r.Header(1, "Run status")
	for _, id := range core.AllStages() {
		s, ok := st[id]
		if !ok {
			continue
		}
		started++
		icon := "running"
		if s.Status == core.StatusDone {
			icon = "success"
		}
		r.StatusLine(stageTitle(id), icon, fmt.Sprintf("%s %3.0f%% %s", output.ProgressBar(s.Progress, 20), s.Progress, s.Status))
	}
	if started == 0 {
		r.Muted("no stage has started")
	}
	return nil
}

// resolveReportFile returns the report file for a path naming either the
// file or its folder.
func resolveReportFile(path, name, flag string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no report location given: pass a path or set %s", flag)
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return filepath.Join(path, name), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if errors.Is(err, os.ErrNotExist) && filepath.Ext(path) == "" {
		// A folder that does not exist yet
		return filepath.Join(path, name), nil
	}
	return path, nil
}
