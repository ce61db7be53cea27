package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dlogcover/dlogcover/internal/cache"
	"github.com/dlogcover/dlogcover/internal/compiledb"
	"github.com/dlogcover/dlogcover/internal/config"
	"github.com/dlogcover/dlogcover/internal/coverage"
	"github.com/dlogcover/dlogcover/internal/debug"
	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
	"github.com/dlogcover/dlogcover/internal/logident"
	"github.com/dlogcover/dlogcover/internal/pipeline"
	"github.com/dlogcover/dlogcover/internal/astparse"
	"github.com/dlogcover/dlogcover/internal/report"
	"github.com/dlogcover/dlogcover/internal/source"
	"github.com/dlogcover/dlogcover/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "dlogcover",
		Usage:   "measure log coverage of a C/C++ codebase",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "directory", Aliases: []string{"d"}, Value: ".", Usage: "project root to scan"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "report output path (default: timestamped)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./dlogcover.json", Usage: "configuration file path"},
			&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"e"}, Usage: "exclude glob, repeatable"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: "debug|info|warning|critical|fatal|all"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "text|json"},
			&cli.StringFlag{Name: "log-path", Aliases: []string{"p"}, Usage: "write the process log to this file"},
			&cli.StringSliceFlag{Name: "include-path", Aliases: []string{"I"}, Usage: "extra compiler include path, repeatable"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress non-essential output"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.IntFlag{Name: "max-threads", Usage: "worker pool size (0 = NumCPU)"},
			&cli.BoolFlag{Name: "disable-parallel", Usage: "run the pipeline with a single worker"},
			&cli.BoolFlag{Name: "disable-cache", Usage: "disable the AST cache"},
			&cli.IntFlag{Name: "max-cache-size", Usage: "AST cache byte cap"},
			&cli.BoolFlag{Name: "disable-io-opt", Usage: "skip the parser warm-up pass"},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "show the resolved configuration and scan scope without analyzing",
				Action: statusCommand,
			},
		},
		Action: analyzeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dlogcover: "+err.Error())
		os.Exit(1)
	}
}

// resolvedConfig loads the config file, then layers the env and CLI
// overlays on top, per the env-overrides-file, CLI-overrides-both
// precedence the external interface promises.
func resolvedConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	cliOverlay := config.Overlay{
		Directory:    c.String("directory"),
		Output:       c.String("output"),
		LogPath:      c.String("log-path"),
		LogLevel:     c.String("log-level"),
		ReportFormat: c.String("format"),
		Exclude:      c.StringSlice("exclude"),
	}
	return config.Merge(cfg, config.FromEnv(), cliOverlay), nil
}

func statusCommand(c *cli.Context) error {
	cfg, err := resolvedConfig(c)
	if err != nil {
		return err
	}
	fmt.Printf("dlogcover %s\n", version.Version)
	fmt.Printf("directories:  %v\n", cfg.Scan.Directories)
	fmt.Printf("extensions:   %v\n", cfg.Scan.FileExtensions)
	fmt.Printf("excludes:     %v\n", cfg.Scan.ExcludePatterns)
	fmt.Printf("qt project:   %v\n", cfg.Scan.IsQtProject)
	fmt.Printf("report format: %s -> %s\n", cfg.Report.Format, cfg.Output.ReportFile)
	return nil
}

func analyzeCommand(c *cli.Context) error {
	debug.SetQuiet(c.Bool("quiet"))
	if c.Bool("verbose") {
		debug.EnableDebug = "true"
		debug.SetOutput(os.Stderr)
	}
	if logPath := c.String("log-path"); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return dlerrors.NewConfigError("log-path", logPath, err)
		}
		defer f.Close()
		debug.SetOutput(f)
	}

	cfg, err := resolvedConfig(c)
	if err != nil {
		return err
	}

	root := cfg.Scan.Directories[0]
	extensions := cfg.Scan.FileExtensions
	if len(extensions) == 0 {
		extensions = []string{".cpp", ".cc", ".cxx", ".h", ".hpp"}
	}

	set, skipped := source.Collect(source.Config{
		Roots:           cfg.Scan.Directories,
		Extensions:      extensions,
		ExcludePatterns: cfg.Scan.ExcludePatterns,
	})
	for _, skip := range skipped {
		debug.LogScan("skipped: %v", skip)
	}

	var db *compiledb.DB
	cdbPath := filepath.Join(root, "compile_commands.json")
	if !fileExists(cdbPath) && fileExists(filepath.Join(root, "CMakeLists.txt")) {
		buildDir := filepath.Join(root, "build")
		generated, err := compiledb.NewCMakeInvoker().Generate(root, buildDir, nil)
		if err != nil {
			debug.LogScan("cmake compile database generation degraded: %v", err)
		} else {
			cdbPath = generated
		}
	}
	if fileExists(cdbPath) {
		loaded, err := compiledb.Load(cdbPath)
		if err != nil {
			debug.LogScan("compile database degraded: %v", err)
		} else {
			db = loaded
		}
	}

	var astCache *cache.Cache
	if !c.Bool("disable-cache") {
		cacheCfg := cache.Config{}
		if max := c.Int("max-cache-size"); max > 0 {
			cacheCfg.MaxBytes = int64(max)
		}
		astCache = cache.New(cacheCfg)
	}

	tables := logident.Build(logident.Config{
		QtEnabled:     cfg.LogFunctions.Qt.Enabled,
		CustomEnabled: cfg.LogFunctions.Custom.Enabled,
		Custom:        cfg.LogFunctions.Custom.Functions,
	})

	concurrency := c.Int("max-threads")
	if c.Bool("disable-parallel") {
		concurrency = 1
	}

	p := pipeline.New(pipeline.Config{
		Driver:        astparse.NewDriver(),
		Cache:         astCache,
		CompileDB:     db,
		Tables:        tables,
		Concurrency:   concurrency,
		ExtraIncludes: c.StringSlice("include-path"),
		DisableWarmup: c.Bool("disable-io-opt"),
	})

	if err := p.Run(context.Background(), set); err != nil {
		return dlerrors.NewAnalysisError(root, "", "pipeline", err)
	}

	results := p.Gather()
	var project coverage.Stats
	var files []report.FileReport
	for _, r := range results {
		project = project.Add(r.Stats)
		note := ""
		if r.Err != nil {
			note = r.Err.Error()
		}
		files = append(files, report.FileReport{RelPath: r.RelPath, Stats: r.Stats, Suggestions: r.Suggestions, ErrorNote: note})
	}

	format := report.Format(cfg.Report.Format)
	if format == "" {
		format = report.FormatText
	}
	registry := report.NewRegistry(report.FormatText)
	registry.Register(&report.TextStrategy{})
	registry.Register(&report.JSONStrategy{})
	registry.OnFallback(func(requested report.Format) {
		fmt.Fprintf(os.Stderr, "dlogcover: unknown report format %q, falling back to text\n", requested)
	})
	strategy := registry.Get(format)

	outputPath := cfg.Output.ReportFile
	if flagOutput := c.String("output"); flagOutput != "" {
		outputPath = flagOutput
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("dlogcover_report_%s%s", time.Now().Format("20060102_150405"), strategy.Extension())
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	meta := report.Metadata{GeneratedAt: time.Now(), ProjectRoot: absRoot, ToolVersion: version.Version}
	if err := strategy.Generate(outputPath, project, files, meta, nil); err != nil {
		return err
	}

	fmt.Printf("report written to %s\n", outputPath)
	fmt.Printf("overall coverage: %.1f%%\n", project.Overall(coverage.Weights{})*100)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
