// Package config loads meshflow CLI configuration.
//
// Values are layered: built-in defaults, then meshflow.yaml, then
// MESHFLOW_* environment variables, then flags the user set explicitly.
package config

// Config holds all CLI configuration options.
type Config struct {
	BinDir      string `koanf:"bin_dir"`
	InputDir    string `koanf:"input_dir"`
	OutputDir   string `koanf:"output_dir"`
	Quality     string `koanf:"quality"`
	OutputType  string `koanf:"output_type"`
	ImageCount  int    `koanf:"image_count"`
	StatusDir   string `koanf:"status_dir"`
	MetadataDir string `koanf:"metadata_dir"`
	ResultsFile string `koanf:"results_file"`
	HistoryPath string `koanf:"history_path"`
	Verbose     bool   `koanf:"verbose"`
	Format      string `koanf:"format"`

	// ParameterOverrides replace catalog options: stage -> option -> value.
	ParameterOverrides map[string]map[string]string `koanf:"parameter_overrides"`

	Serve ServeConfig `koanf:"serve"`

	// ImageCountSet records whether image_count came from any source, since
	// zero is a valid count.
	ImageCountSet bool `koanf:"-"`
	// ConfigFile is the file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// ServeConfig holds configuration for the HTTP read API.
type ServeConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Default configuration values.
const (
	DefaultHistoryPath = ".meshflow/history.db"
	DefaultFormat      = "auto"
	DefaultServeHost   = "127.0.0.1"
	DefaultServePort   = 8765
	DefaultConfigFile  = "meshflow.yaml"
	EnvPrefix          = "MESHFLOW_"
)

// pathKeys are resolved against the config file's directory when they come
// from the file, and against the working directory otherwise.
var pathKeys = []string{
	"bin_dir", "input_dir", "output_dir", "status_dir",
	"metadata_dir", "results_file", "history_path",
}

// flagKeys maps CLI flag names to config keys. Flags not listed here are
// command options and never reach the config.
var flagKeys = map[string]string{
	"bin":         "bin_dir",
	"input":       "input_dir",
	"output":      "output_dir",
	"quality":     "quality",
	"output-type": "output_type",
	"image-count": "image_count",
	"status":      "status_dir",
	"metadata":    "metadata_dir",
	"results":     "results_file",
	"history":     "history_path",
	"verbose":     "verbose",
	"format":      "format",
	"host":        "serve.host",
	"port":        "serve.port",
}
