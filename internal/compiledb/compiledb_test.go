package compiledb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

func writeDB(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFileReturnsCompileDbError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var cerr *dlerrors.CompileDbError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "missing", cerr.Reason)
}

func TestLoadMalformedJSONReturnsCompileDbError(t *testing.T) {
	path := writeDB(t, "{not valid json")
	_, err := Load(path)
	var cerr *dlerrors.CompileDbError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "malformed", cerr.Reason)
}

func TestLoadParsesCommandStringIntoArguments(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(srcFile, []byte("int main(){}"), 0o644))

	contents := `[{"directory": "` + dir + `", "file": "a.cpp", "command": "g++ -I/usr/include -Iinclude -DDEBUG=1 -std=c++17 -c a.cpp"}]`
	path := writeDB(t, contents)

	db, err := Load(path)
	require.NoError(t, err)

	info, ok := db.InfoFor(srcFile)
	require.True(t, ok)
	assert.Contains(t, info.IncludePaths, "/usr/include")
	assert.Contains(t, info.IncludePaths, "include")
	assert.Contains(t, info.Defines, "DEBUG=1")
	assert.Contains(t, info.Flags, "-std=c++17")
}

func TestLoadParsesArgumentsArrayDirectly(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "b.cpp")
	require.NoError(t, os.WriteFile(srcFile, []byte("int main(){}"), 0o644))

	contents := `[{"directory": "` + dir + `", "file": "b.cpp", "arguments": ["g++", "-Iinc", "-DX", "-c", "b.cpp"]}]`
	path := writeDB(t, contents)

	db, err := Load(path)
	require.NoError(t, err)

	info := db.ArgsFor(srcFile)
	assert.Equal(t, []string{"g++", "-Iinc", "-DX", "-c", "b.cpp"}, info.Arguments)
	assert.False(t, info.FileUnknown)
}

func TestArgsForUnknownFileFallsBackToHeuristicDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "include"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dlogcover.json"), []byte("{}"), 0o644))
	contents := `[{"directory": "` + dir + `", "file": "a.cpp", "command": "g++ -c a.cpp"}]`
	path := writeDB(t, contents)

	db, err := Load(path)
	require.NoError(t, err)

	info := db.ArgsFor(filepath.Join(dir, "unknown.cpp"))
	assert.True(t, info.FileUnknown)
	assert.Contains(t, info.Flags, "-std=c++17")
	assert.Contains(t, info.IncludePaths, filepath.Join(dir, "include"))
}

func TestIsystemClassifiedAsIncludePath(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(srcFile, []byte("int main(){}"), 0o644))

	contents := `[{"directory": "` + dir + `", "file": "a.cpp", "command": "g++ -isystem /usr/include/extra -isystem/usr/include/more -c a.cpp"}]`
	path := writeDB(t, contents)

	db, err := Load(path)
	require.NoError(t, err)

	info, ok := db.InfoFor(srcFile)
	require.True(t, ok)
	assert.Contains(t, info.IncludePaths, "/usr/include/extra")
	assert.Contains(t, info.IncludePaths, "/usr/include/more")
}

func TestProjectIncludesWalksUpToRootMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte(""), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0o755))
	sub := filepath.Join(root, "src", "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "src"), 0o755))
	file := filepath.Join(sub, "thing.cpp")
	require.NoError(t, os.WriteFile(file, []byte("int main(){}"), 0o644))

	db := &DB{byFile: map[string]CompileInfo{}}
	includes := db.ProjectIncludes(file)
	assert.Contains(t, includes, filepath.Join(root, "include"))
	assert.Contains(t, includes, filepath.Join(sub, "src"))
}

func TestSystemIncludesParsesCompilerSearchList(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "fake-cxx.sh")
	script := "#!/bin/sh\n" +
		"cat <<'EOF' >&2\n" +
		"#include \"...\" search starts here:\n" +
		"#include <...> search starts here:\n" +
		" /usr/include/c++/13\n" +
		" /usr/include\n" +
		"End of search list.\n" +
		"EOF\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))
	t.Setenv("CXX", stub)

	db := &DB{byFile: map[string]CompileInfo{}}
	includes, err := db.SystemIncludes()
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/include/c++/13", "/usr/include"}, includes)
}
