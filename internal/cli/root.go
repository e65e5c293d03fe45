// Package cli provides the command-line interface for meshflow.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/meshflow/internal/cli/commands"
	"github.com/leapstack-labs/meshflow/internal/cli/config"
	"github.com/leapstack-labs/meshflow/internal/cli/output"
)

var cfgFile string

// Version is set at build time.
var Version = "0.1.0"

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meshflow",
		Short: "meshflow - photogrammetry pipeline orchestrator",
		Long: `meshflow drives the AliceVision command-line tools from a folder of photos
to a point cloud, a mesh or a textured mesh.

It runs each stage in order with parameters chosen for the quality tier and
the number of images, verifies what every stage produced, and keeps a live
status file, a step-by-step report and a history of runs.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if _, err := output.ParseMode(cfg.Format); err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			// Print config file used (if verbose)
			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Photogrammetry pipeline orchestrator for AliceVision
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./meshflow.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("format", "f", "", "Output format (auto|text|markdown|json|yaml)")
	rootCmd.PersistentFlags().String("history", "", "Path to the run history database")

	// Register completion for format flag
	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStagesCommand())
	rootCmd.AddCommand(commands.NewParamsCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger builds the stderr logger: debug with --verbose, info otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for meshflow.

To load completions:

Bash:
  $ source <(meshflow completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ meshflow completion bash > /etc/bash_completion.d/meshflow
  # macOS:
  $ meshflow completion bash > $(brew --prefix)/etc/bash_completion.d/meshflow

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ meshflow completion zsh > "${fpath[1]}/_meshflow"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ meshflow completion fish | source

  # To load completions for each session, execute once:
  $ meshflow completion fish > ~/.config/fish/completions/meshflow.fish

PowerShell:
  PS> meshflow completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> meshflow completion powershell > meshflow.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
