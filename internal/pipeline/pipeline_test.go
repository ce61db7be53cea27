package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogcover/dlogcover/internal/astparse"
	"github.com/dlogcover/dlogcover/internal/cache"
	"github.com/dlogcover/dlogcover/internal/coverage"
	"github.com/dlogcover/dlogcover/internal/logident"
	"github.com/dlogcover/dlogcover/internal/source"
)

func scanOne(t *testing.T, dir, name, content string) *source.Set {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	set, errs := source.Collect(source.Config{Roots: []string{dir}, Extensions: []string{".cpp"}})
	require.Empty(t, errs)
	return set
}

func newTestConfig(c *cache.Cache) Config {
	return Config{
		Driver: astparse.NewDriver(),
		Cache:  c,
		Tables: logident.Build(logident.Config{QtEnabled: true}),
	}
}

func TestScenarioS5CacheInvalidationOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(cache.Config{})

	set := scanOne(t, dir, "a.cpp", `void f() { qDebug() << "hi"; }`)
	p := New(newTestConfig(c))
	require.NoError(t, p.Run(context.Background(), set))

	results := p.Gather()
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Stats.Function.Total)
	assert.Equal(t, 1, results[0].Stats.Function.Covered)

	// Ensure the second write gets a different mtime than the cache saw.
	time.Sleep(2 * time.Millisecond)
	set2 := scanOne(t, dir, "a.cpp", `void f(){}`)

	p2 := New(newTestConfig(c))
	require.NoError(t, p2.Run(context.Background(), set2))

	results2 := p2.Gather()
	require.Len(t, results2, 1)
	assert.Equal(t, 1, results2[0].Stats.Function.Total)
	assert.Equal(t, 0, results2[0].Stats.Function.Covered)
	assert.EqualValues(t, 0, p2.ParseStats().CacheHits, "overwritten file must miss the cache")
}

func TestRunCallsOnResultForEveryFile(t *testing.T) {
	dir := t.TempDir()
	set := scanOne(t, dir, "a.cpp", `void f(){ qInfo() << "x"; }`)

	var seen []string
	cfg := newTestConfig(nil)
	cfg.OnResult = func(r FileResult) { seen = append(seen, r.RelPath) }
	p := New(cfg)

	require.NoError(t, p.Run(context.Background(), set))
	assert.Equal(t, []string{"a.cpp"}, seen)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	set := scanOne(t, dir, "a.cpp", `void f(int x){ if(x<0){ qWarning()<<"neg"; } }`)

	p1 := New(newTestConfig(nil))
	require.NoError(t, p1.Run(context.Background(), set))
	p2 := New(newTestConfig(nil))
	require.NoError(t, p2.Run(context.Background(), set))

	r1, r2 := p1.Gather(), p2.Gather()
	require.Len(t, r1, 1)
	require.Len(t, r2, 1)
	assert.Equal(t, r1[0].Stats, r2[0].Stats)
}

func TestAnalyzeOrdersFunctionsComplexityFirst(t *testing.T) {
	dir := t.TempDir()
	src := `
void trivialGetter() { return; }
void complexOne(int x) {
	if (x < 0) { qWarning() << "neg"; }
	else if (x == 0) { qInfo() << "zero"; }
	for (int i = 0; i < x; i++) { qDebug() << i; }
}
void trivialSetter(int v) { return; }
`
	set := scanOne(t, dir, "a.cpp", src)
	p := New(newTestConfig(nil))
	require.NoError(t, p.Run(context.Background(), set))

	results := p.Gather()
	require.Len(t, results, 1)
	functions := results[0].Functions
	require.Len(t, functions, 3)

	assert.Equal(t, "complexOne", functions[0].Name)
	for i := 1; i < len(functions); i++ {
		assert.GreaterOrEqual(t, functions[i-1].Complexity, functions[i].Complexity)
	}
	assert.Equal(t, "trivialGetter", functions[1].Name)
	assert.Equal(t, "trivialSetter", functions[2].Name)
}

func TestFunctionResultsSumToFileStats(t *testing.T) {
	dir := t.TempDir()
	src := `
void a() { qInfo() << "a"; }
void b(int x) { if (x < 0) { } }
`
	set := scanOne(t, dir, "a.cpp", src)
	p := New(newTestConfig(nil))
	require.NoError(t, p.Run(context.Background(), set))

	results := p.Gather()
	require.Len(t, results, 1)

	var summed coverage.Stats
	for _, fn := range results[0].Functions {
		summed = summed.Add(fn.Stats)
	}
	assert.Equal(t, results[0].Stats.Function, summed.Function)
	assert.Equal(t, results[0].Stats.Branch, summed.Branch)
}
