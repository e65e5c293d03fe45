package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCoreImportsOnly verifies pkg/core only imports the standard library.
// Stage, report and deliverable types are shared by the engine, the CLI and
// the HTTP API, and external tools decode status and metadata files with them.
func TestCoreImportsOnly(t *testing.T) {
	fset := token.NewFileSet()

	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("Failed to read core directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(".", entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			first := strings.SplitN(importPath, "/", 2)[0]
			if strings.Contains(first, ".") {
				t.Errorf("%s imports non-stdlib package %q", entry.Name(), importPath)
			}
		}
	}
}
