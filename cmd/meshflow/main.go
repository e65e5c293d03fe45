// Package main provides the CLI for the meshflow photogrammetry pipeline.
package main

import (
	"os"

	"github.com/leapstack-labs/meshflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
