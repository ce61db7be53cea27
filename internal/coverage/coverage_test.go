package coverage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/astparse"
	"github.com/dlogcover/dlogcover/internal/compiledb"
	"github.com/dlogcover/dlogcover/internal/logident"
)

func build(t *testing.T, src string) *astmodel.Node {
	t.Helper()
	driver := astparse.NewDriver()
	result, err := driver.Parse(context.Background(), "s.cpp", []byte(src), compiledb.CompileInfo{})
	require.NoError(t, err)
	tables := logident.Build(logident.Config{QtEnabled: true})
	logident.Identify(result.Tree, tables)
	return result.Tree
}

var equalWeights = Weights{Function: 1, Branch: 1, Exception: 1, KeyPath: 1}

func TestScenarioS1OneFileOneLogCall(t *testing.T) {
	tree := build(t, `void f() { qDebug() << "hi"; }`)
	stats, _ := Calculate("a.cpp", tree, Config{})

	assert.Equal(t, Metric{Total: 1, Covered: 1}, stats.Function)
	assert.Equal(t, 0, stats.Branch.Total)
	assert.Equal(t, 0, stats.Exception.Total)
	assert.Equal(t, 0, stats.KeyPath.Total)
	assert.InDelta(t, 1.0, stats.Overall(equalWeights), 1e-9)
}

func TestScenarioS2UncoveredCatch(t *testing.T) {
	tree := build(t, `void g() { try { throw 1; } catch(...) { } }`)
	stats, suggestions := Calculate("g.cpp", tree, Config{})

	assert.Equal(t, Metric{Total: 1, Covered: 0}, stats.Function)
	assert.Equal(t, Metric{Total: 2, Covered: 0}, stats.Exception)
	assert.Equal(t, 0, stats.Branch.Total)
	assert.InDelta(t, 0.0, stats.Overall(equalWeights), 1e-9)

	var catchSuggestion *Suggestion
	for i := range suggestions {
		if suggestions[i].Kind == SuggestUncoveredException && suggestions[i].Name == "Catch" {
			catchSuggestion = &suggestions[i]
		}
	}
	require.NotNil(t, catchSuggestion)
	assert.Equal(t, logident.LevelCritical, catchSuggestion.Level)
}

func TestScenarioS3BranchPartial(t *testing.T) {
	tree := build(t, `void h(int x){ if(x<0){ qWarning()<<"neg"; } else { return; } }`)
	stats, _ := Calculate("h.cpp", tree, Config{})

	assert.Equal(t, Metric{Total: 1, Covered: 1}, stats.Function)
	assert.Equal(t, Metric{Total: 2, Covered: 1}, stats.Branch)
	assert.InDelta(t, 0.875, stats.Overall(equalWeights), 1e-9)
}

func TestScenarioS4KeyPathByKeyword(t *testing.T) {
	tree := build(t, `void k(int r){ if(r==-1){ } else { } }`)
	stats, _ := Calculate("k.cpp", tree, Config{})

	assert.Equal(t, Metric{Total: 1, Covered: 0}, stats.KeyPath)
	assert.Equal(t, Metric{Total: 2, Covered: 0}, stats.Branch)
}

func TestMetricRatioVacuousWhenZeroDenominator(t *testing.T) {
	m := Metric{}
	assert.Equal(t, 1.0, m.Ratio())
}

func TestStatsAddCombinesAcrossFiles(t *testing.T) {
	a := Stats{Function: Metric{Total: 1, Covered: 1}, Branch: Metric{Total: 2, Covered: 1}}
	b := Stats{Function: Metric{Total: 3, Covered: 2}, KeyPath: Metric{Total: 1, Covered: 0}}

	want := Stats{
		Function: Metric{Total: 4, Covered: 3},
		Branch:   Metric{Total: 2, Covered: 1},
		KeyPath:  Metric{Total: 1, Covered: 0},
	}
	got := a.Add(b)
	got.RelativePath = ""
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Stats.Add() mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateStatsIsComponentwiseSum(t *testing.T) {
	a, _ := Calculate("a.cpp", build(t, `void f() { qDebug() << "hi"; }`), Config{})
	b, _ := Calculate("g.cpp", build(t, `void g() { try { throw 1; } catch(...) { } }`), Config{})

	total := AggregateStats([]Stats{a, b})
	assert.Equal(t, a.Function.Total+b.Function.Total, total.Function.Total)
	assert.Equal(t, a.Exception.Covered+b.Exception.Covered, total.Exception.Covered)
}
