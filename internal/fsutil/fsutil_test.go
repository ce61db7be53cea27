package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSkipsPrunedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "gen.cpp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.cpp"), []byte("x"), 0o644))

	files, err := List(root, func(path string, d os.DirEntry) bool {
		return d.Name() == "build"
	})
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Contains(t, files[0], "main.cpp")
}

func TestWriteCreatesParentDirs(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "out.json")
	require.NoError(t, Write(target, []byte("{}"), 0o644))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestScopedTempFileCleansUp(t *testing.T) {
	path, cleanup, err := ScopedTempFile(t.TempDir(), "dlogcover-*.tmp")
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	cleanup()
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRelativeFallsBackOutsideRoot(t *testing.T) {
	assert.Equal(t, "src/main.cpp", Relative("/home/user/project/src/main.cpp", "/home/user/project"))
	assert.Equal(t, "/other/file.cpp", Relative("/other/file.cpp", "/home/user/project"))
	assert.Equal(t, "rel.cpp", Relative("rel.cpp", "/home/user/project"))
}

func TestGlobToRegexTranslation(t *testing.T) {
	re, err := GlobToRegex("*_test.cpp")
	require.NoError(t, err)
	assert.True(t, re.MatchString("foo_test.cpp"))
	assert.False(t, re.MatchString("foo_test.cpp.bak"))

	re, err = GlobToRegex("file?.cpp")
	require.NoError(t, err)
	assert.True(t, re.MatchString("file1.cpp"))
	assert.False(t, re.MatchString("file12.cpp"))
}

func TestGlobToRegexEscapesMetacharacters(t *testing.T) {
	re, err := GlobToRegex("a.b+c")
	require.NoError(t, err)
	assert.True(t, re.MatchString("a.b+c"))
	assert.False(t, re.MatchString("aXb+c"))
}

func TestMatchGlobMatchesTranslatedPattern(t *testing.T) {
	assert.True(t, MatchGlob("*.generated.cpp", "widget.generated.cpp"))
	assert.False(t, MatchGlob("*.generated.cpp", "widget.cpp"))
}
