// Package coverage computes the four coverage metrics (spec component
// C9) from a file's reduced AST tree: function, branch, exception, and
// key-path coverage, plus per-element improvement suggestions.
package coverage

import (
	"strings"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/logident"
)

// defaultKeyPathKeywords is the configurable set of substrings that mark
// a branch guard as a "key path" worth logging on its own.
var defaultKeyPathKeywords = []string{
	"error", "fail", "exception", "invalid", "denied", "null", "nullptr", "-1",
}

// Metric is a single (total, covered) coverage pair with its derived
// ratio. A zero-denominator metric is vacuously fully covered (ratio
// 1.0) and flagged via Vacuous so reports can call that out.
type Metric struct {
	Total   int
	Covered int
	Vacuous bool
}

// Ratio returns Covered/Total, or 1.0 when Total is zero.
func (m Metric) Ratio() float64 {
	if m.Total == 0 {
		return 1.0
	}
	return float64(m.Covered) / float64(m.Total)
}

// Add returns the componentwise sum of m and other, used to fold
// per-file metrics into project totals.
func (m Metric) Add(other Metric) Metric {
	return Metric{Total: m.Total + other.Total, Covered: m.Covered + other.Covered}
}

// Weights configures Overall's weighted mean. Zero value means "use
// equal weights", matching the spec's default.
type Weights struct {
	Function  float64
	Branch    float64
	Exception float64
	KeyPath   float64
}

func (w Weights) normalized() (fn, br, ex, kp float64) {
	fn, br, ex, kp = w.Function, w.Branch, w.Exception, w.KeyPath
	sum := fn + br + ex + kp
	if sum <= 0 {
		return 0.25, 0.25, 0.25, 0.25
	}
	return fn / sum, br / sum, ex / sum, kp / sum
}

// Stats is the full coverage record for either a single file or an
// aggregated project.
type Stats struct {
	RelativePath string
	Function     Metric
	Branch       Metric
	Exception    Metric
	KeyPath      Metric
}

// Overall computes the weighted mean of the four metric ratios.
func (s Stats) Overall(w Weights) float64 {
	fn, br, ex, kp := w.normalized()
	return fn*s.Function.Ratio() + br*s.Branch.Ratio() + ex*s.Exception.Ratio() + kp*s.KeyPath.Ratio()
}

// Add returns the componentwise sum of s and other; used to fold a
// file's stats into a running project total. RelativePath is dropped
// since a project total has no single file.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Function:  s.Function.Add(other.Function),
		Branch:    s.Branch.Add(other.Branch),
		Exception: s.Exception.Add(other.Exception),
		KeyPath:   s.KeyPath.Add(other.KeyPath),
	}
}

// SuggestionKind names the structural element a suggestion targets.
type SuggestionKind string

const (
	SuggestUncoveredFunction  SuggestionKind = "uncovered_function"
	SuggestUncoveredBranch    SuggestionKind = "uncovered_branch"
	SuggestUncoveredException SuggestionKind = "uncovered_exception"
	SuggestUncoveredKeyPath   SuggestionKind = "uncovered_key_path"
)

// Suggestion recommends adding logging to one uncovered element.
type Suggestion struct {
	Kind     SuggestionKind
	Name     string
	Location astmodel.Location
	Level    logident.LogLevel
}

// Config carries the key-path keyword set; empty means use the default.
type Config struct {
	KeyPathKeywords []string
}

func (c Config) keywords() []string {
	if len(c.KeyPathKeywords) == 0 {
		return defaultKeyPathKeywords
	}
	return c.KeyPathKeywords
}

// Calculate walks root and returns the file's coverage stats plus
// suggestions for every uncovered element, per spec §4.9.
func Calculate(relativePath string, root *astmodel.Node, cfg Config) (Stats, []Suggestion) {
	stats := Stats{RelativePath: relativePath}
	var suggestions []Suggestion

	functions := root.Collect(astmodel.KindFunction, astmodel.KindMethod)
	stats.Function.Total = len(functions)
	for _, fn := range functions {
		if fn.HasLogging {
			stats.Function.Covered++
		} else {
			suggestions = append(suggestions, Suggestion{
				Kind: SuggestUncoveredFunction, Name: fn.Name, Location: fn.Begin, Level: logident.LevelInfo,
			})
		}
	}

	branches := root.Collect(astmodel.KindIf, astmodel.KindElse, astmodel.KindSwitch, astmodel.KindCase)
	stats.Branch.Total = len(branches)
	for _, br := range branches {
		if br.HasLogging {
			stats.Branch.Covered++
		} else {
			suggestions = append(suggestions, Suggestion{
				Kind: SuggestUncoveredBranch, Name: br.Name, Location: br.Begin, Level: logident.LevelDebug,
			})
		}
	}

	tryCatch := root.Collect(astmodel.KindTry, astmodel.KindCatch)
	stats.Exception.Total = len(tryCatch)
	for _, node := range tryCatch {
		if node.HasLogging {
			stats.Exception.Covered++
		} else {
			level := logident.LevelWarning
			if node.Kind == astmodel.KindCatch {
				level = logident.LevelCritical
			}
			suggestions = append(suggestions, Suggestion{
				Kind: SuggestUncoveredException, Name: node.Kind.String(), Location: node.Begin, Level: level,
			})
		}
	}

	keywords := cfg.keywords()
	keyPaths := keyPathBranches(branches, keywords)
	stats.KeyPath.Total = len(keyPaths)
	for _, kp := range keyPaths {
		if kp.HasLogging {
			stats.KeyPath.Covered++
		} else {
			suggestions = append(suggestions, Suggestion{
				Kind: SuggestUncoveredKeyPath, Name: kp.Name, Location: kp.Begin, Level: logident.LevelCritical,
			})
		}
	}

	stats.Function.Vacuous = stats.Function.Total == 0
	stats.Branch.Vacuous = stats.Branch.Total == 0
	stats.Exception.Vacuous = stats.Exception.Total == 0
	stats.KeyPath.Vacuous = stats.KeyPath.Total == 0

	return stats, suggestions
}

// keyPathBranches filters branches down to those whose guard text
// (carried in Name for If/Case nodes) case-insensitively contains one of
// keywords.
func keyPathBranches(branches []*astmodel.Node, keywords []string) []*astmodel.Node {
	var out []*astmodel.Node
	for _, br := range branches {
		guard := strings.ToLower(br.Name)
		for _, kw := range keywords {
			if strings.Contains(guard, strings.ToLower(kw)) {
				out = append(out, br)
				break
			}
		}
	}
	return out
}

// AggregateStats folds a slice of per-file Stats into one project total.
func AggregateStats(files []Stats) Stats {
	var total Stats
	for _, s := range files {
		total = total.Add(s)
	}
	return total
}
