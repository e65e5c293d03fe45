// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/meshflow/internal/cli/output"
	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Workspace is a temporary set of run folders.
type Workspace struct {
	Root      string
	BinDir    string
	InputDir  string
	OutputDir string
	StatusDir string
}

// SetupTestWorkspace creates run folders with imageCount fake images and a
// fake binary for every stage. Each binary is a shell script that writes a
// line to stderr and exits with code 0.
func SetupTestWorkspace(t *testing.T, imageCount int) *Workspace {
	t.Helper()

	root := t.TempDir()
	ws := &Workspace{
		Root:      root,
		BinDir:    filepath.Join(root, "bin"),
		InputDir:  filepath.Join(root, "images"),
		OutputDir: filepath.Join(root, "out"),
		StatusDir: filepath.Join(root, "status"),
	}

	for _, dir := range []string{ws.BinDir, ws.InputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	for i := range imageCount {
		name := filepath.Join(ws.InputDir, fmt.Sprintf("IMG_%04d.JPG", i))
		if err := os.WriteFile(name, []byte("jpeg"), 0o644); err != nil {
			t.Fatalf("failed to create image %s: %v", name, err)
		}
	}

	for _, name := range locations.Binaries(core.AllStages()) {
		WriteFakeBinary(t, ws.BinDir, name, "echo '[warning] fake binary' >&2\nexit 0\n")
	}

	return ws
}

// WriteFakeBinary writes an executable shell script named name into dir.
func WriteFakeBinary(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil { //nolint:gosec // test binary must be executable
		t.Fatalf("failed to create binary %s: %v", path, err)
	}
	return path
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
