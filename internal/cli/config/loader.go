package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// findConfigFile returns the explicit path, or meshflow.yaml in the working
// directory if present.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{DefaultConfigFile, "meshflow.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// LoadConfig loads configuration from defaults, file, environment variables
// and flags. Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"history_path": DefaultHistoryPath,
		"format":       DefaultFormat,
		"verbose":      false,
		"serve.host":   DefaultServeHost,
		"serve.port":   DefaultServePort,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file, with relative paths anchored at its directory
	configFile := findConfigFile(cfgFile)
	if configFile != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			if cfgFile == "" && errors.Is(err, fs.ErrNotExist) {
				configFile = ""
			} else {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
		if configFile != "" {
			baseDir := filepath.Dir(configFile)
			for _, key := range pathKeys {
				if !fk.Exists(key) {
					continue
				}
				p := resolvePathRelativeTo(expandEnvVars(fk.String(key)), baseDir)
				if err := fk.Set(key, p); err != nil {
					return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
				}
			}
			if err := k.Merge(fk); err != nil {
				return nil, fmt.Errorf("failed to merge config file: %w", err)
			}
		}
	}

	// 3. Environment variables: MESHFLOW_BIN_DIR -> bin_dir, MESHFLOW_SERVE_PORT -> serve.port
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags the user set explicitly
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ImageCountSet = k.Exists("image_count")
	cfg.ConfigFile = configFile
	configFileUsed = configFile

	// 6. Remaining relative paths come from env or flags: anchor at CWD
	for _, p := range []*string{
		&cfg.BinDir, &cfg.InputDir, &cfg.OutputDir, &cfg.StatusDir,
		&cfg.MetadataDir, &cfg.ResultsFile, &cfg.HistoryPath,
	} {
		*p = absPath(*p)
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "serve_"); ok {
		return "serve." + rest
	}
	return key
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// absPath makes p absolute relative to the working directory. Empty paths
// stay empty.
func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
