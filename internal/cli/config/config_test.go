package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// newTestFlags mirrors the persistent and run flags the CLI registers.
func newTestFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("bin", "", "")
	flags.String("input", "", "")
	flags.String("output", "", "")
	flags.String("quality", "", "")
	flags.String("output-type", "", "")
	flags.Int("image-count", 0, "")
	flags.String("status", "", "")
	flags.String("metadata", "", "")
	flags.String("results", "", "")
	flags.String("history", "", "")
	flags.Bool("verbose", false, "")
	flags.String("format", "", "")
	flags.Int("port", 0, "")
	flags.Bool("watch", false, "")
	return flags
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "meshflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultFormat, cfg.Format)
	assert.Equal(t, DefaultServePort, cfg.Serve.Port)
	assert.Equal(t, DefaultServeHost, cfg.Serve.Host)
	assert.True(t, filepath.IsAbs(cfg.HistoryPath))
	assert.Equal(t, filepath.Join(".meshflow", "history.db"), filepath.Join(filepath.Base(filepath.Dir(cfg.HistoryPath)), filepath.Base(cfg.HistoryPath)))
	assert.False(t, cfg.ImageCountSet)
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_FileResolvesRelativePaths(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
bin_dir: bin
input_dir: /abs/images
output_dir: out
quality: high
output_type: mesh
image_count: 42
status_dir: status
parameter_overrides:
  depth_map:
    downscale: 4
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "bin"), cfg.BinDir)
	assert.Equal(t, "/abs/images", cfg.InputDir)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.OutputDir)
	assert.Equal(t, filepath.Join(dir, "status"), cfg.StatusDir)
	assert.Equal(t, "high", cfg.Quality)
	assert.Equal(t, 42, cfg.ImageCount)
	assert.True(t, cfg.ImageCountSet)
	assert.Equal(t, "4", cfg.ParameterOverrides["depth_map"]["downscale"])
	assert.Equal(t, cfgPath, GetConfigFileUsed())
}

func TestLoadConfig_FileExpandsEnvVars(t *testing.T) {
	ResetConfig()
	t.Setenv("MESHFLOW_TEST_ROOT", "/data/scan")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "input_dir: ${MESHFLOW_TEST_ROOT}/images\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/scan/images", cfg.InputDir)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadConfig_FindsFileInWorkingDir(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "quality: draft\n")
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "draft", cfg.Quality)
	assert.Equal(t, DefaultConfigFile, GetConfigFileUsed())
}

// TestLoadConfig_FlagPrecedence verifies flags override env vars and config file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "quality: draft\nimage_count: 10\n")

	t.Setenv("MESHFLOW_QUALITY", "medium")

	flags := newTestFlags()
	require.NoError(t, flags.Set("quality", "high"))
	require.NoError(t, flags.Set("image-count", "200"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "high", cfg.Quality, "flag should override env var and config file")
	assert.Equal(t, 200, cfg.ImageCount)
}

// TestLoadConfig_EnvPrecedenceOverFile verifies env vars override config file.
func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "output_type: mesh\nserve:\n  port: 9000\n")

	t.Setenv("MESHFLOW_OUTPUT_TYPE", "textured_mesh")
	t.Setenv("MESHFLOW_SERVE_PORT", "9100")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "textured_mesh", cfg.OutputType, "env var should override config file")
	assert.Equal(t, 9100, cfg.Serve.Port)
}

// TestLoadConfig_FlagNotSetUsesEnv verifies unset flags do not override env vars.
func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	t.Setenv("MESHFLOW_FORMAT", "json")

	flags := newTestFlags()
	require.NoError(t, flags.Set("watch", "true"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Format, "unset flag should not override env var")
}

func TestLoadConfig_FlagPathsAreAbsolute(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	flags := newTestFlags()
	require.NoError(t, flags.Set("status", "st"))
	require.NoError(t, flags.Set("image-count", "0"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "st"), cfg.StatusDir)
	assert.True(t, cfg.ImageCountSet, "explicit zero still counts as set")
	assert.Equal(t, cfg.StatusDir, cfg.MetadataDirOrDefault())
}

func TestConfig_ValidateRun(t *testing.T) {
	valid := func() Config {
		return Config{
			BinDir: "/bin", InputDir: "/in", OutputDir: "/out",
			Quality: "draft", OutputType: "mesh", StatusDir: "/st",
			ImageCount: 12, ImageCountSet: true,
		}
	}

	t.Run("valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.ValidateRun())
	})

	t.Run("missing settings are listed together", func(t *testing.T) {
		c := valid()
		c.BinDir = ""
		c.ImageCountSet = false
		err := c.ValidateRun()
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.Contains(t, err.Error(), "--bin")
		assert.Contains(t, err.Error(), "--image-count")
	})

	t.Run("unknown quality", func(t *testing.T) {
		c := valid()
		c.Quality = "ULTRA"
		assert.ErrorIs(t, c.ValidateRun(), core.ErrConfiguration)
	})

	t.Run("unknown output type", func(t *testing.T) {
		c := valid()
		c.OutputType = "VOXELS"
		assert.ErrorIs(t, c.ValidateRun(), core.ErrConfiguration)
	})

	t.Run("negative image count is accepted", func(t *testing.T) {
		c := valid()
		c.ImageCount = -1
		assert.NoError(t, c.ValidateRun())
	})
}

func TestConfig_ValidateDirectories(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	c := Config{BinDir: dir, InputDir: dir}
	require.NoError(t, c.ValidateDirectories())

	c.InputDir = filepath.Join(dir, "missing")
	err := c.ValidateDirectories()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input folder does not exist")

	c.InputDir = file
	err = c.ValidateDirectories()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestGetLogger_Fallback(t *testing.T) {
	logger := GetLogger(context.Background())
	require.NotNil(t, logger)
}
