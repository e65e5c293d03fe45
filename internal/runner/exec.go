package runner

import (
	"context"
	"errors"
	"io"
	"os/exec"
)

// Executor launches one external process and waits for it.
type Executor interface {
	// Execute runs argv[0] with the remaining arguments. The process's
	// stderr is written to stderr; stdout is discarded.
	Execute(ctx context.Context, argv []string, stderr io.Writer) error
}

// ExecExecutor runs binaries with os/exec.
type ExecExecutor struct{}

// Execute implements Executor.
func (ExecExecutor) Execute(ctx context.Context, argv []string, stderr io.Writer) error {
	if len(argv) == 0 {
		return errors.New("empty command line")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // binaries come from the configured bin dir
	cmd.Stdout = nil
	cmd.Stderr = stderr
	return cmd.Run()
}

// exitCode extracts the process exit status from an Execute error, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
