// Package fsutil collects the small filesystem primitives the rest of
// dlogcover builds on: directory walking, path normalization, and the
// glob→regex translation the source scanner's exclude patterns depend on.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

// List walks root and returns every regular file path beneath it,
// skipping directories prune reports should be pruned.
func List(root string, prune func(path string, d fs.DirEntry) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if prune != nil && path != root && prune(path, d) {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, dlerrors.NewFileError("list", root, err)
	}
	return out, nil
}

// Read reads the full contents of path, wrapping any error as a FileError.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dlerrors.NewFileError("read", path, err)
	}
	return data, nil
}

// Write writes data to path, creating parent directories as needed.
func Write(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dlerrors.NewFileError("write", path, err)
		}
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return dlerrors.NewFileError("write", path, err)
	}
	return nil
}

// ScopedTempFile creates a temp file in dir with the given name pattern,
// returning its path and a cleanup func that removes it. Callers defer
// the cleanup so report generation and cache rebuilds never leak scratch
// files on error paths.
func ScopedTempFile(dir, pattern string) (path string, cleanup func(), err error) {
	f, ferr := os.CreateTemp(dir, pattern)
	if ferr != nil {
		return "", func() {}, dlerrors.NewFileError("create_temp", dir, ferr)
	}
	name := f.Name()
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

// Normalize returns an absolute, cleaned, slash-separated form of path
// suitable for use as a stable map key (compile database lookups, cache
// keys, dedupe sets).
func Normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.ToSlash(filepath.Clean(abs))
}

// Relative converts an absolute path to one relative to root, falling
// back to the absolute path if it lies outside root or the conversion
// fails — report output always prefers the relative form for readability.
func Relative(absPath, root string) string {
	if absPath == "" || root == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(rel, "..") {
		return absPath
	}
	return rel
}

// globMetaRegexp matches regex metacharacters that must be escaped when
// translating a glob literal into a regex literal.
var globMetaRegexp = regexp.MustCompile(`[.+^$()\[\]{}|\\]`)

// GlobToRegex translates a shell glob into the regex the source scanner's
// include/exclude matching uses: '*' becomes '.*', '?' becomes '.', and
// every other regex metacharacter in the pattern is escaped so it matches
// itself literally. If the resulting pattern fails to compile, the caller
// should fall back to plain substring containment.
func GlobToRegex(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			if globMetaRegexp.MatchString(string(r)) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile translated glob %q: %w", glob, err)
	}
	return re, nil
}

// MatchGlob reports whether name matches glob, using GlobToRegex and
// falling back to substring containment if the pattern fails to compile.
func MatchGlob(glob, name string) bool {
	re, err := GlobToRegex(glob)
	if err != nil {
		return strings.Contains(name, glob)
	}
	return re.MatchString(name)
}
