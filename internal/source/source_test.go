package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScenarioS6ExcludePattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.cpp", "int main(){}")
	writeFile(t, root, "build/x.cpp", "int x(){}")

	set, errs := Collect(Config{
		Roots:           []string{root},
		Extensions:      []string{".cpp"},
		ExcludePatterns: []string{"build/*"},
	})
	require.Empty(t, errs)
	require.Len(t, set.Files, 1)
	assert.Equal(t, "src/m.cpp", set.Files[0].RelPath)
}

func TestCollectClassifiesHeaders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "widget.h", "class Widget;")
	writeFile(t, root, "widget.cpp", "class Widget{};")

	set, errs := Collect(Config{
		Roots:      []string{root},
		Extensions: []string{".h", ".cpp"},
	})
	require.Empty(t, errs)
	require.Len(t, set.Files, 2)

	for _, f := range set.Files {
		if filepath.Ext(f.RelPath) == ".h" {
			assert.True(t, f.IsHeader)
		} else {
			assert.False(t, f.IsHeader)
		}
	}
}

func TestCollectDedupesByCanonicalPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.cpp", "int a(){}")

	set, errs := Collect(Config{
		Roots:      []string{root, root}, // same root scanned twice
		Extensions: []string{".cpp"},
	})
	require.Empty(t, errs)
	assert.Len(t, set.Files, 1)
}

func TestIndexOfFindsCollectedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.cpp", "int a(){}")

	set, _ := Collect(Config{Roots: []string{root}, Extensions: []string{".cpp"}})
	idx, ok := set.IndexOf(filepath.Join(root, "a.cpp"))
	require.True(t, ok)
	assert.Equal(t, "a.cpp", set.Files[idx].RelPath)
}

func TestCollectSkipsDirectoryWithSourceExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.cpp", "int a(){}")
	badDir := filepath.Join(root, "bad.cpp")
	require.NoError(t, os.Mkdir(badDir, 0o755)) // a directory named bad.cpp is walked into, never collected as a file

	set, _ := Collect(Config{Roots: []string{root}, Extensions: []string{".cpp"}})
	require.Len(t, set.Files, 1)
	assert.Equal(t, "good.cpp", set.Files[0].RelPath)
}
