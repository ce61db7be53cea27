package report

import (
	"encoding/json"
	"time"

	"github.com/dlogcover/dlogcover/internal/coverage"
	"github.com/dlogcover/dlogcover/internal/fsutil"
)

// jsonDocument is the wire shape of the JSON report, fields fixed by
// the external contract: metadata, overall, files[].
type jsonDocument struct {
	Metadata jsonMetadata   `json:"metadata"`
	Overall  jsonMetricSet  `json:"overall"`
	Files    []jsonFileStat `json:"files"`
}

type jsonMetadata struct {
	GeneratedAt string `json:"generated_at"`
	ProjectRoot string `json:"project_root"`
	ToolVersion string `json:"tool_version"`
}

type jsonMetric struct {
	Total   int     `json:"total"`
	Covered int     `json:"covered"`
	Ratio   float64 `json:"ratio"`
	Vacuous bool    `json:"vacuous"`
}

type jsonMetricSet struct {
	Function  jsonMetric `json:"function"`
	Branch    jsonMetric `json:"branch"`
	Exception jsonMetric `json:"exception"`
	KeyPath   jsonMetric `json:"key_path"`
	Overall   float64    `json:"overall"`
}

type jsonUncovered struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	File  string `json:"file"`
	Line  int    `json:"line"`
	Level string `json:"level"`
}

type jsonFileStat struct {
	Path      string          `json:"path"`
	Metrics   jsonMetricSet   `json:"metrics"`
	Uncovered []jsonUncovered `json:"uncovered"`
	Error     string          `json:"error,omitempty"`
}

func toMetric(m coverage.Metric) jsonMetric {
	return jsonMetric{Total: m.Total, Covered: m.Covered, Ratio: m.Ratio(), Vacuous: m.Vacuous}
}

func toMetricSet(s coverage.Stats) jsonMetricSet {
	return jsonMetricSet{
		Function:  toMetric(s.Function),
		Branch:    toMetric(s.Branch),
		Exception: toMetric(s.Exception),
		KeyPath:   toMetric(s.KeyPath),
		Overall:   s.Overall(coverage.Weights{}),
	}
}

// JSONStrategy renders the machine-readable report consumed by CI
// integrations and other tooling.
type JSONStrategy struct {
	Indent string // defaults to two spaces when empty
}

func (s *JSONStrategy) Name() string      { return "json" }
func (s *JSONStrategy) Extension() string { return ".json" }
func (s *JSONStrategy) Format() Format    { return FormatJSON }

func (s *JSONStrategy) Generate(outputPath string, project coverage.Stats, files []FileReport, meta Metadata, progress ProgressFunc) error {
	doc := jsonDocument{
		Metadata: jsonMetadata{
			GeneratedAt: meta.GeneratedAt.UTC().Format(time.RFC3339),
			ProjectRoot: meta.ProjectRoot,
			ToolVersion: meta.ToolVersion,
		},
		Overall: toMetricSet(project),
	}

	for i, f := range files {
		fs := jsonFileStat{Path: f.RelPath, Metrics: toMetricSet(f.Stats), Error: f.ErrorNote}
		for _, sug := range f.Suggestions {
			fs.Uncovered = append(fs.Uncovered, jsonUncovered{
				Kind:  string(sug.Kind),
				Name:  sug.Name,
				File:  sug.Location.File,
				Line:  sug.Location.Line,
				Level: sug.Level.String(),
			})
		}
		doc.Files = append(doc.Files, fs)
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	indent := s.Indent
	if indent == "" {
		indent = "  "
	}
	data, err := json.MarshalIndent(doc, "", indent)
	if err != nil {
		return wrapGenerateErr(FormatJSON, outputPath, err)
	}
	data = append(data, '\n')

	if err := fsutil.Write(outputPath, data, 0o644); err != nil {
		return wrapGenerateErr(FormatJSON, outputPath, err)
	}
	return nil
}
