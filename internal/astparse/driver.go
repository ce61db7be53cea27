// Package astparse is the parse driver (spec component C5): it invokes
// the tree-sitter C/C++ frontend and hands the resulting concrete syntax
// tree to the visitor in visitor.go, which reduces it to the trimmed
// astmodel.Node tree every other component operates over.
//
// The driver is a thin boundary, per the spec: its only invariants are
// that identical inputs yield an equivalent tree, and that a frontend
// failure to return any tree maps to errors.ParseError. Syntax errors
// inside a tree that was returned only set Result.HadErrors; they are not
// mapped to errors.ParseError, and the best-effort tree is returned.
package astparse

import (
	"context"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/dlogcover/dlogcover/internal/astmodel"
	"github.com/dlogcover/dlogcover/internal/compiledb"
	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

// Driver owns a pool of tree-sitter parsers. tree-sitter parsers are not
// safe for concurrent use, so the driver hands out one per call and
// returns it to the pool when done — the same per-goroutine-parser
// discipline the teacher applies per language via sync.Pool.
type Driver struct {
	language *tree_sitter.Language
	pool     sync.Pool
}

// NewDriver constructs a parse driver for C/C++. The tree-sitter-cpp
// grammar covers both languages; the spec's scope is C/C++ exclusively,
// so no other grammar is wired in here (see DESIGN.md).
func NewDriver() *Driver {
	lang := tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	d := &Driver{language: lang}
	d.pool.New = func() interface{} {
		p := tree_sitter.NewParser()
		_ = p.SetLanguage(lang)
		return p
	}
	return d
}

// Prime constructs one parser and returns it to the pool, so the first
// real Parse call on some goroutine doesn't pay tree-sitter's parser/
// query setup cost on the critical path. Callers bound how many Primes
// run concurrently (see pool.Pool's warm-up semaphore).
func (d *Driver) Prime() {
	d.pool.Put(d.pool.New())
}

// Result is the parse driver's output for one file: the reduced node
// tree plus whether tree-sitter reported syntax errors while building it.
type Result struct {
	Tree      *astmodel.Node
	HadErrors bool
}

// Parse builds a translation unit for path/content using the given
// compile args (currently only consulted for dialect-affecting future
// use; tree-sitter's grammar does not branch on preprocessor defines).
// Identical (path, content) always yields a structurally identical tree.
func (d *Driver) Parse(ctx context.Context, path string, content []byte, _ compiledb.CompileInfo) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	parserIface := d.pool.Get()
	parser := parserIface.(*tree_sitter.Parser)
	defer d.pool.Put(parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, dlerrors.NewParseError(path, 0, 0, "frontend returned no tree", nil)
	}
	defer tree.Close()

	root := tree.RootNode()
	hadErrors := root.HasError()

	visitor := newVisitor(path, content)
	node := visitor.visitTranslationUnit(root)

	return &Result{Tree: node, HadErrors: hadErrors}, nil
}
