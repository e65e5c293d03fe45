// Package runner executes a single pipeline stage.
//
// A run creates the stage's output directory, builds the command line from
// the stage's locations and options, invokes the binary (in image ranges for
// the depth map stage), streams stderr into the stage log and reports
// progress to a status sink. Process failures are logged, never returned:
// whether a stage succeeded is decided afterwards from its artifacts.
package runner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// DefaultGroupSize is used when the depth map options carry no usable
// groupSize.
const DefaultGroupSize = 3

// Config holds runner configuration.
type Config struct {
	// Executor launches processes (defaults to ExecExecutor)
	Executor Executor
	// LogDir receives one <stage>_log.txt per stage
	LogDir string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Runner executes stages one at a time.
type Runner struct {
	exec   Executor
	logDir string
	logger *slog.Logger
}

// New creates a runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	executor := cfg.Executor
	if executor == nil {
		executor = ExecExecutor{}
	}
	return &Runner{exec: executor, logDir: cfg.LogDir, logger: logger}
}

// Result describes what happened while running one stage.
type Result struct {
	Invocations int
	// Failed counts invocations that returned an error (non-zero exit or
	// launch failure).
	Failed int
	// Canceled is set when the context ended before every invocation ran.
	Canceled bool
}

// Run executes the stage described by spec.
func (r *Runner) Run(ctx context.Context, spec core.StageSpec, opts core.Options, sink core.StatusSink, imageCount int) Result {
	logger := r.logger.With("stage", spec.ID)

	if err := os.MkdirAll(spec.OutputDir, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		logger.Warn("failed to create output directory", "path", spec.OutputDir, "error", err)
	}

	state := core.StageState{Status: core.StatusInProgress}
	sink.Update(spec.ID, state)

	argv := CommandLine(spec, opts)

	logFile, closeLog := r.openLog(logger, spec.ID)
	defer closeLog()

	var res Result
	invoke := func(args []string) bool {
		if ctx.Err() != nil {
			res.Canceled = true
			return false
		}
		res.Invocations++
		logger.Debug("invoking stage binary", "argv", args)
		if err := r.exec.Execute(ctx, args, logFile); err != nil {
			res.Failed++
			logger.Warn("stage binary failed", "binary", spec.Binary, "exit_code", exitCode(err), "error", err)
		}
		return true
	}

	if spec.ID == core.StageDepthMap {
		groups := Ranges(imageCount, groupSize(logger, opts))
		for i, g := range groups {
			if !invoke(append(slices.Clone(argv), g.Args()...)) {
				break
			}
			state.Progress = float64(i+1) / float64(len(groups)) * 100
			sink.Update(spec.ID, state)
		}
	} else if invoke(argv) {
		state.Progress = 100
		sink.Update(spec.ID, state)
	}

	if res.Canceled {
		logger.Warn("stage interrupted", "error", ctx.Err())
	}

	sink.Update(spec.ID, core.StageState{Status: core.StatusDone, Progress: 100})
	return res
}

// CommandLine builds the base argv of a stage: the binary, then every
// location, then every option except groupSize.
func CommandLine(spec core.StageSpec, opts core.Options) []string {
	argv := make([]string, 0, 1+2*len(spec.Locations)+2*len(opts))
	argv = append(argv, spec.Binary)
	for _, l := range spec.Locations {
		argv = append(argv, "--"+l.Name, l.Path)
	}
	return append(argv, opts.Args()...)
}

func (r *Runner) openLog(logger *slog.Logger, id core.StageID) (io.Writer, func()) {
	if err := os.MkdirAll(r.logDir, 0o750); err != nil {
		logger.Warn("failed to create log directory", "path", r.logDir, "error", err)
	}
	path := locations.LogPath(r.logDir, id)
	f, err := os.Create(path) //nolint:gosec // path derived from configured log dir
	if err != nil {
		logger.Warn("failed to open stage log, stderr will be dropped", "path", path, "error", err)
		return io.Discard, func() {}
	}
	return f, func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close stage log", "path", path, "error", err)
		}
	}
}

func groupSize(logger *slog.Logger, opts core.Options) int {
	raw, ok := opts.Get(core.GroupSizeOption)
	if !ok {
		return DefaultGroupSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Warn("invalid groupSize, using default", "value", raw, "default", DefaultGroupSize)
		return DefaultGroupSize
	}
	return n
}
