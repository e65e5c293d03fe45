package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// ValidateRun checks that every setting a pipeline run needs is present.
// Missing settings are reported together.
func (c *Config) ValidateRun() error {
	var missing []string
	for _, f := range []struct{ flag, value string }{
		{"--bin", c.BinDir},
		{"--input", c.InputDir},
		{"--output", c.OutputDir},
		{"--quality", c.Quality},
		{"--output-type", c.OutputType},
		{"--status", c.StatusDir},
	} {
		if f.value == "" {
			missing = append(missing, f.flag)
		}
	}
	if !c.ImageCountSet {
		missing = append(missing, "--image-count")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required settings: %s", core.ErrConfiguration, strings.Join(missing, ", "))
	}

	var errs []error
	if _, err := core.ParseQuality(c.Quality); err != nil {
		errs = append(errs, err)
	}
	if _, err := core.ParseOutputType(c.OutputType); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateDirectories checks that the input folders of a run exist.
func (c *Config) ValidateDirectories() error {
	for _, d := range []struct{ name, path string }{
		{"binaries folder", c.BinDir},
		{"input folder", c.InputDir},
	} {
		info, err := os.Stat(d.path)
		if err != nil {
			return fmt.Errorf("%s does not exist: %s\nHint: check the path or set it in %s", d.name, d.path, DefaultConfigFile)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory: %s", d.name, d.path)
		}
	}
	return nil
}

// MetadataDirOrDefault returns the metadata folder, defaulting to the
// status folder.
func (c *Config) MetadataDirOrDefault() string {
	if c.MetadataDir != "" {
		return c.MetadataDir
	}
	return c.StatusDir
}
