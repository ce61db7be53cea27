// Package config loads and validates dlogcover's JSON configuration
// file, then layers environment-variable and CLI-flag overrides on top
// (env overrides file, CLI overrides both).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"

	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

// SchemaVersion is the only value the config file's "version" field
// currently accepts.
const SchemaVersion = "1.0"

type Config struct {
	Version     string      `json:"version"`
	Scan        Scan        `json:"scan"`
	LogFunctions LogFunctions `json:"log_functions"`
	Analysis    Analysis    `json:"analysis"`
	Output      Output      `json:"output"`
	Report      Report      `json:"report"`
}

type Scan struct {
	Directories   []string `json:"directories"`
	ExcludePatterns []string `json:"exclude_patterns"`
	FileExtensions  []string `json:"file_extensions"`
	CompilerArgs    []string `json:"compiler_args"`
	IsQtProject     bool     `json:"is_qt_project"`
}

type QtFunctions struct {
	Enabled          bool     `json:"enabled"`
	Functions        []string `json:"functions"`
	CategoryFunctions []string `json:"category_functions"`
}

type CustomFunctions struct {
	Enabled   bool                `json:"enabled"`
	Functions map[string][]string `json:"functions"`
}

type LogFunctions struct {
	Qt     QtFunctions     `json:"qt"`
	Custom CustomFunctions `json:"custom"`
}

type Analysis struct {
	FunctionCoverage  bool `json:"function_coverage"`
	BranchCoverage    bool `json:"branch_coverage"`
	ExceptionCoverage bool `json:"exception_coverage"`
	KeyPathCoverage   bool `json:"key_path_coverage"`
}

type Output struct {
	ReportFile string `json:"report_file"`
	LogFile    string `json:"log_file"`
	LogLevel   string `json:"log_level"`
}

type Report struct {
	Format string `json:"format"`
}

// Default returns the built-in configuration used when no config file
// is present, matching the CLI's own documented defaults.
func Default() *Config {
	return &Config{
		Version: SchemaVersion,
		Scan: Scan{
			Directories:     []string{"."},
			FileExtensions:  []string{".cpp", ".cc", ".cxx", ".h", ".hpp"},
			ExcludePatterns: []string{"build/*", "third_party/*", ".git/*"},
		},
		LogFunctions: LogFunctions{
			Qt: QtFunctions{Enabled: true},
		},
		Analysis: Analysis{
			FunctionCoverage:  true,
			BranchCoverage:    true,
			ExceptionCoverage: true,
			KeyPathCoverage:   true,
		},
		Output: Output{
			ReportFile: "dlogcover_report.txt",
			LogLevel:   "info",
		},
		Report: Report{Format: "text"},
	}
}

// configSchema documents the recognized top-level shape; it is the
// grounding for validateDoc below rather than an invoked validator,
// matching how the schema package is used elsewhere in this codebase
// to describe a document's shape.
var configSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"version"},
	Properties: map[string]*jsonschema.Schema{
		"version": {Type: "string"},
	},
}

// validateDoc checks doc against configSchema's required top-level
// keys. Unknown keys are ignored, matching the config file's documented
// forward-compatibility contract.
func validateDoc(doc map[string]interface{}) error {
	for _, key := range configSchema.Required {
		if _, ok := doc[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

// Load reads and validates the config file at path. A missing file is
// not an error: Load silently returns Default(). A present but
// malformed or schema-invalid file returns a ConfigError, which is
// fatal per the error taxonomy.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, dlerrors.NewConfigError("file", path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dlerrors.NewConfigError("file", path, err)
	}
	if err := validateDoc(doc); err != nil {
		return nil, dlerrors.NewConfigError("schema", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, dlerrors.NewConfigError("file", path, err)
	}

	if cfg.Version != SchemaVersion {
		return nil, dlerrors.NewConfigError("version", cfg.Version, fmt.Errorf("unsupported config version, want %q", SchemaVersion))
	}
	if len(cfg.Scan.Directories) == 0 {
		return nil, dlerrors.NewConfigError("scan.directories", path, fmt.Errorf("missing required field"))
	}

	return cfg, nil
}

// Overlay is the set of environment-variable and CLI-flag values that
// may override a loaded Config. A zero value for any field leaves the
// corresponding setting untouched.
type Overlay struct {
	Directory    string
	Output       string
	LogPath      string
	LogLevel     string
	ReportFormat string
	Exclude      []string
}

// FromEnv reads the DLOGCOVER_* environment variables into an Overlay.
func FromEnv() Overlay {
	var o Overlay
	o.Directory = os.Getenv("DLOGCOVER_DIRECTORY")
	o.Output = os.Getenv("DLOGCOVER_OUTPUT")
	o.LogPath = os.Getenv("DLOGCOVER_LOG_PATH")
	o.LogLevel = os.Getenv("DLOGCOVER_LOG_LEVEL")
	o.ReportFormat = os.Getenv("DLOGCOVER_REPORT_FORMAT")
	if v := os.Getenv("DLOGCOVER_EXCLUDE"); v != "" {
		o.Exclude = append(o.Exclude, v)
	}
	return o
}

// Apply layers o onto cfg in place; non-empty Overlay fields win.
func (o Overlay) Apply(cfg *Config) {
	if o.Directory != "" {
		cfg.Scan.Directories = []string{o.Directory}
	}
	if o.Output != "" {
		cfg.Output.ReportFile = o.Output
	}
	if o.LogPath != "" {
		cfg.Output.LogFile = o.LogPath
	}
	if o.LogLevel != "" {
		cfg.Output.LogLevel = o.LogLevel
	}
	if o.ReportFormat != "" {
		cfg.Report.Format = o.ReportFormat
	}
	if len(o.Exclude) > 0 {
		merged := make([]string, 0, len(cfg.Scan.ExcludePatterns)+len(o.Exclude))
		merged = append(merged, cfg.Scan.ExcludePatterns...)
		merged = append(merged, o.Exclude...)
		cfg.Scan.ExcludePatterns = merged
	}
}

// Merge layers the env overlay and then the CLI overlay onto cfg, in
// that precedence order, and returns the result. cfg is not mutated.
func Merge(cfg *Config, env, cli Overlay) *Config {
	merged := *cfg
	env.Apply(&merged)
	cli.Apply(&merged)
	return &merged
}
