// Package report implements the pluggable report strategy (spec
// component C11): a format-agnostic Strategy interface, a Registry that
// maps ReportFormat to a concrete strategy, and the Text and JSON
// strategies themselves.
package report

import (
	"time"

	"github.com/dlogcover/dlogcover/internal/coverage"
	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

// Format is the closed set of report output formats.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// FileReport pairs one file's coverage stats with its improvement
// suggestions and optional error note (set when the file failed to
// parse or analyze but is still reported, per the per-file error
// policy).
type FileReport struct {
	RelPath     string
	Stats       coverage.Stats
	Suggestions []coverage.Suggestion
	ErrorNote   string
}

// Metadata carries run-level information every report format includes.
type Metadata struct {
	GeneratedAt time.Time
	ProjectRoot string
	ToolVersion string
}

// ProgressFunc is invoked by Generate as it writes each file's section,
// letting a caller drive a progress bar on long reports. May be nil.
type ProgressFunc func(completed, total int)

// Strategy is the format-agnostic report generation contract.
type Strategy interface {
	Name() string
	Extension() string
	Format() Format
	Generate(outputPath string, project coverage.Stats, files []FileReport, meta Metadata, progress ProgressFunc) error
}

// Registry maps a requested format to its strategy, falling back to a
// configured default (normally Text) with a warning when the format is
// unregistered.
type Registry struct {
	strategies map[Format]Strategy
	fallback   Format
	onFallback func(requested Format)
}

// NewRegistry constructs a registry with the given fallback format. The
// fallback strategy must be registered via Register before first use.
func NewRegistry(fallback Format) *Registry {
	return &Registry{strategies: make(map[Format]Strategy), fallback: fallback}
}

// OnFallback installs a callback invoked whenever Get falls back because
// the requested format was never registered (used to log a warning).
func (r *Registry) OnFallback(fn func(requested Format)) {
	r.onFallback = fn
}

// Register adds or replaces the strategy for its own Format().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Format()] = s
}

// Get returns the strategy for format, or the registry's fallback
// strategy (with onFallback invoked) if format was never registered.
func (r *Registry) Get(format Format) Strategy {
	if s, ok := r.strategies[format]; ok {
		return s
	}
	if r.onFallback != nil {
		r.onFallback(format)
	}
	return r.strategies[r.fallback]
}

// wrapGenerateErr wraps a strategy's underlying I/O failure as the
// taxonomy's ReportError, per the fatal-after-analysis error policy.
func wrapGenerateErr(format Format, path string, err error) error {
	if err == nil {
		return nil
	}
	return dlerrors.NewReportError(string(format), path, err)
}
