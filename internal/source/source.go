// Package source implements the source manager (spec component C4):
// it scans configured roots for files matching an extension allowlist,
// applies exclude patterns, and produces the ordered file set the
// pipeline analyzes.
package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
	"github.com/dlogcover/dlogcover/internal/fsutil"
)

// File is one retained source file: read eagerly at discovery time and
// treated as read-only thereafter.
type File struct {
	AbsPath      string
	RelPath      string
	Size         int64
	ModTime      int64 // Unix nanoseconds, for cache-key comparisons
	Content      []byte
	IsHeader     bool
}

// headerExtensions classifies a retained file as a header vs a
// translation unit by its suffix.
var headerExtensions = map[string]bool{
	".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".inl": true,
}

// Config describes what the manager should collect.
type Config struct {
	Roots           []string
	Extensions      []string // e.g. ".cpp", ".h"; matched case-insensitively
	ExcludePatterns []string // globs, matched against the path relative to its root
}

// Set is the ordered, deduplicated result of a Collect call, plus the
// path→index map for O(1) lookup.
type Set struct {
	Files   []File
	byIndex map[string]int
}

// IndexOf returns the index of the file at canonical path p, if present.
func (s *Set) IndexOf(p string) (int, bool) {
	idx, ok := s.byIndex[fsutil.Normalize(p)]
	return idx, ok
}

// Collect scans every configured root and returns the retained file set.
// A file is retained iff its extension is in cfg.Extensions and no
// exclude pattern matches its path relative to the root it was found
// under. Read failures are logged by the caller via the returned skipped
// slice rather than aborting the whole scan.
func Collect(cfg Config) (*Set, []error) {
	set := &Set{byIndex: make(map[string]int)}
	var skipped []error

	seen := make(map[string]bool)

	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			if !hasExtension(path, cfg.Extensions) {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)
			if matchesAnyExclude(rel, cfg.ExcludePatterns) {
				return nil
			}

			canonical := fsutil.Normalize(path)
			if seen[canonical] {
				return nil
			}

			info, statErr := d.Info()
			if statErr != nil {
				skipped = append(skipped, dlerrors.NewFileError("stat", path, statErr))
				return nil
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				skipped = append(skipped, dlerrors.NewFileError("read", path, readErr))
				return nil
			}

			seen[canonical] = true
			set.byIndex[canonical] = len(set.Files)
			set.Files = append(set.Files, File{
				AbsPath:  canonical,
				RelPath:  rel,
				Size:     info.Size(),
				ModTime:  info.ModTime().UnixNano(),
				Content:  content,
				IsHeader: isHeader(path),
			})
			return nil
		})
		if err != nil {
			skipped = append(skipped, dlerrors.NewFileError("walk", root, err))
		}
	}

	return set, skipped
}

func hasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func isHeader(path string) bool {
	return headerExtensions[strings.ToLower(filepath.Ext(path))]
}

// matchesAnyExclude reports whether rel matches any of patterns. Each
// pattern is tried first as a doublestar glob (the common, fast-path
// case for "**"-style directory patterns); when doublestar does not
// match (or rejects the pattern) it is also tried through the
// glob→regex translation mandated for exclude patterns, which itself
// falls back to substring containment. A match from either excludes rel.
func matchesAnyExclude(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if fsutil.MatchGlob(pattern, rel) {
			return true
		}
	}
	return false
}
