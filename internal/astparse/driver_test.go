package astparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/compiledb"
)

func parseSnippet(t *testing.T, src string) *astmodel.Node {
	t.Helper()
	d := NewDriver()
	result, err := d.Parse(context.Background(), "snippet.cpp", []byte(src), compiledb.CompileInfo{})
	require.NoError(t, err)
	require.NotNil(t, result.Tree)
	return result.Tree
}

func TestParseSimpleFunctionProducesFunctionNode(t *testing.T) {
	src := `
void doWork() {
    qDebug() << "starting";
}
`
	tree := parseSnippet(t, src)
	fns := tree.Collect(astmodel.KindFunction)
	require.Len(t, fns, 1)
	assert.Equal(t, "doWork", fns[0].Name)
}

func TestParseNamespacePrefixesFunctionName(t *testing.T) {
	src := `
namespace app {
namespace detail {
void helper() {}
}
}
`
	tree := parseSnippet(t, src)
	fns := tree.Collect(astmodel.KindFunction)
	require.Len(t, fns, 1)
	assert.Equal(t, "app::detail::helper", fns[0].Name)
}

func TestParseMethodInsideClass(t *testing.T) {
	src := `
class Widget {
public:
    void render() {}
};
`
	tree := parseSnippet(t, src)
	methods := tree.Collect(astmodel.KindMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "Widget::render", methods[0].Name)
}

func TestParseExternCIsTransparent(t *testing.T) {
	src := `
extern "C" {
void cFunction() {}
}
`
	tree := parseSnippet(t, src)
	fns := tree.Collect(astmodel.KindFunction)
	require.Len(t, fns, 1)
	assert.Equal(t, "cFunction", fns[0].Name)
}

func TestParseIfElseProducesBranchNodes(t *testing.T) {
	src := `
void f(int x) {
    if (x < 0) {
        doA();
    } else {
        doB();
    }
}
`
	tree := parseSnippet(t, src)
	ifs := tree.Collect(astmodel.KindIf)
	require.Len(t, ifs, 1)
	elses := tree.Collect(astmodel.KindElse)
	require.Len(t, elses, 1)
}

func TestParseTryCatchProducesNodes(t *testing.T) {
	src := `
void f() {
    try {
        risky();
    } catch (const std::exception& e) {
        handle(e);
    }
}
`
	tree := parseSnippet(t, src)
	assert.Len(t, tree.Collect(astmodel.KindTry), 1)
	assert.Len(t, tree.Collect(astmodel.KindCatch), 1)
}

func TestParseSwitchCaseProducesNodes(t *testing.T) {
	src := `
void f(int x) {
    switch (x) {
    case 1:
        doA();
        break;
    case 2:
        doB();
        break;
    }
}
`
	tree := parseSnippet(t, src)
	assert.Len(t, tree.Collect(astmodel.KindSwitch), 1)
	assert.Len(t, tree.Collect(astmodel.KindCase), 2)
}

func TestParseIdenticalInputYieldsEquivalentTree(t *testing.T) {
	src := `void f() { qWarning() << "x"; }`
	a := parseSnippet(t, src)
	b := parseSnippet(t, src)
	assert.Equal(t, a.Count(astmodel.KindFunction), b.Count(astmodel.KindFunction))
	assert.Equal(t, a.Count(astmodel.KindCallExpr), b.Count(astmodel.KindCallExpr))
}
