// Package compiledb loads and queries a compile_commands.json compilation
// database (spec component C3): given a source file, it answers what
// compiler arguments, include paths, and defines apply to it.
package compiledb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/dlogcover/dlogcover/internal/debug"
	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
	"github.com/dlogcover/dlogcover/internal/fsutil"
)

// CompileInfo is the per-file compilation record extracted from a
// compile_commands.json entry.
type CompileInfo struct {
	Directory     string
	File          string
	Command       string
	Arguments     []string
	IncludePaths  []string
	Defines       []string
	Flags         []string
	// FileUnknown is set when this CompileInfo was synthesized by
	// ArgsFor's heuristic fallback rather than read from the database.
	FileUnknown bool
}

// rawEntry mirrors one JSON object in compile_commands.json. Either
// Command or Arguments is present, never both in well-formed databases,
// but both are accepted.
type rawEntry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
}

// DB is a loaded, indexed compilation database.
type DB struct {
	byFile map[string]CompileInfo
	path   string
}

// Load parses the compile_commands.json at path. A missing file is a
// CompileDbError with reason "missing"; malformed JSON is "malformed".
func Load(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dlerrors.NewCompileDbError("missing", path, err)
		}
		return nil, dlerrors.NewCompileDbError("malformed", path, err)
	}

	var entries []rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, dlerrors.NewCompileDbError("malformed", path, err)
	}

	db := &DB{byFile: make(map[string]CompileInfo, len(entries)), path: path}
	for _, e := range entries {
		info := buildCompileInfo(e)
		key := canonicalKey(info.Directory, info.File)
		db.byFile[key] = info
	}
	return db, nil
}

func buildCompileInfo(e rawEntry) CompileInfo {
	args := e.Arguments
	if len(args) == 0 && e.Command != "" {
		tokens, err := shlex.Split(e.Command)
		if err == nil {
			args = tokens
		} else {
			args = strings.Fields(e.Command)
		}
	}

	info := CompileInfo{
		Directory: e.Directory,
		File:      e.File,
		Command:   e.Command,
		Arguments: args,
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-isystem" && i+1 < len(args):
			info.IncludePaths = append(info.IncludePaths, args[i+1])
			i++
		case strings.HasPrefix(a, "-isystem") && len(a) > len("-isystem"):
			info.IncludePaths = append(info.IncludePaths, a[len("-isystem"):])
		case strings.HasPrefix(a, "-I"):
			if a == "-I" && i+1 < len(args) {
				info.IncludePaths = append(info.IncludePaths, args[i+1])
				i++
			} else if len(a) > 2 {
				info.IncludePaths = append(info.IncludePaths, a[2:])
			}
		case strings.HasPrefix(a, "-D"):
			if a == "-D" && i+1 < len(args) {
				info.Defines = append(info.Defines, args[i+1])
				i++
			} else if len(a) > 2 {
				info.Defines = append(info.Defines, a[2:])
			}
		default:
			info.Flags = append(info.Flags, a)
		}
	}
	return info
}

func canonicalKey(directory, file string) string {
	if filepath.IsAbs(file) {
		return fsutil.Normalize(file)
	}
	return fsutil.Normalize(filepath.Join(directory, file))
}

// ArgsFor returns the compilation info for filePath: the database's own
// entry if one exists, or a heuristic default (this file's inferred
// project include directories plus "-std=c++17") when the database has
// no entry for it. A miss is logged and recorded on the returned
// CompileInfo (FileUnknown), never treated as fatal, per the "degrade"
// policy for files the compile database doesn't know about.
func (db *DB) ArgsFor(filePath string) CompileInfo {
	if info, ok := db.lookup(filePath); ok {
		return info
	}
	debug.LogScan("compile database has no entry for %s, using heuristic defaults", filePath)
	return db.heuristicDefaults(filePath)
}

func (db *DB) heuristicDefaults(filePath string) CompileInfo {
	includes := db.ProjectIncludes(filePath)
	args := []string{"c++", "-std=c++17"}
	for _, inc := range includes {
		args = append(args, "-I"+inc)
	}
	return CompileInfo{
		File:         filePath,
		Arguments:    args,
		IncludePaths: includes,
		Flags:        []string{"-std=c++17"},
		FileUnknown:  true,
	}
}

// InfoFor returns the full CompileInfo for filePath, or the zero value
// and false if the database has no entry for it.
func (db *DB) InfoFor(filePath string) (CompileInfo, bool) {
	return db.lookup(filePath)
}

func (db *DB) lookup(filePath string) (CompileInfo, bool) {
	abs := filePath
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	info, ok := db.byFile[fsutil.Normalize(abs)]
	if ok {
		return info, true
	}
	info, ok = db.byFile[fsutil.Normalize(filePath)]
	return info, ok
}

// SystemIncludes invokes the configured system C++ compiler with
// "-E -v -x c++ /dev/null" and parses the "#include <...> search starts
// here:" block out of its stderr, returning the toolchain's own default
// include search path. The compiler is $CXX, falling back to "c++".
func (db *DB) SystemIncludes() ([]string, error) {
	compiler := systemCompiler()

	cmd := exec.Command(compiler, "-E", "-v", "-x", "c++", os.DevNull)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, dlerrors.NewCompileDbError("missing", compiler, err)
	}
	return parseIncludeSearchList(stderr.String()), nil
}

func systemCompiler() string {
	if cxx := os.Getenv("CXX"); cxx != "" {
		return cxx
	}
	return "c++"
}

// parseIncludeSearchList extracts the directories between the
// "#include <...> search starts here:" and "End of search list." markers
// a compiler's verbose preprocessor output prints.
func parseIncludeSearchList(output string) []string {
	const startMarker = "#include <...> search starts here:"
	const endMarker = "End of search list."

	var out []string
	inBlock := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(trimmed, startMarker):
			inBlock = true
			continue
		case strings.Contains(trimmed, endMarker):
			inBlock = false
			continue
		}
		if inBlock && trimmed != "" {
			out = append(out, strings.TrimSuffix(trimmed, " (framework directory)"))
		}
	}
	return out
}

// ProjectIncludes walks upward from file's directory, collecting every
// "include" and "src" subdirectory it passes, until it reaches (and
// includes) a directory carrying a .git or dlogcover.json root marker,
// or the filesystem root.
func (db *DB) ProjectIncludes(file string) []string {
	dir := filepath.Dir(file)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	seen := make(map[string]bool)
	var out []string
	for {
		for _, sub := range []string{"include", "src"} {
			candidate := filepath.Join(dir, sub)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() && !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
			}
		}

		if isProjectRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return out
}

func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "dlogcover.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Files returns every file path recorded in the database.
func (db *DB) Files() []string {
	out := make([]string, 0, len(db.byFile))
	for _, info := range db.byFile {
		out = append(out, info.File)
	}
	return out
}

// BuildSystemInvoker generates a compile_commands.json by driving an
// external build system. It is kept as an interface, separate from the
// core analysis engine, so the common path (an already-generated
// database) never depends on having cmake installed.
type BuildSystemInvoker interface {
	Generate(projectDir, buildDir string, extraArgs []string) (string, error)
}

// CMakeInvoker shells out to `cmake` with
// CMAKE_EXPORT_COMPILE_COMMANDS=ON to produce compile_commands.json.
type CMakeInvoker struct {
	Runner func(dir string, name string, args ...string) error
}

// NewCMakeInvoker returns a CMakeInvoker that runs the real cmake binary.
func NewCMakeInvoker() *CMakeInvoker {
	return &CMakeInvoker{Runner: runCommand}
}

func runCommand(dir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return nil
}

// Generate runs cmake in buildDir against projectDir and returns the
// resulting compile_commands.json path.
func (c *CMakeInvoker) Generate(projectDir, buildDir string, extraArgs []string) (string, error) {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return "", dlerrors.NewCompileDbError("missing", buildDir, err)
	}
	args := append([]string{projectDir, "-DCMAKE_EXPORT_COMPILE_COMMANDS=ON"}, extraArgs...)
	if err := c.Runner(buildDir, "cmake", args...); err != nil {
		return "", dlerrors.NewCompileDbError("malformed", buildDir, err)
	}
	out := filepath.Join(buildDir, "compile_commands.json")
	if _, err := os.Stat(out); err != nil {
		return "", dlerrors.NewCompileDbError("missing", out, fmt.Errorf("cmake did not produce %s", out))
	}
	return out, nil
}
