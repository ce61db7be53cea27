package astparse

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dlogcover/dlogcover/internal/astmodel"
)

// visitor reduces one tree-sitter concrete syntax tree to a trimmed
// astmodel.Node tree. A visitor is single-use: construct one per file.
type visitor struct {
	file    string
	content []byte
}

func newVisitor(file string, content []byte) *visitor {
	return &visitor{file: file, content: content}
}

func (v *visitor) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(v.content)) || start > end {
		return ""
	}
	return string(v.content[start:end])
}

func (v *visitor) location(n *tree_sitter.Node) (begin, end astmodel.Location) {
	if n == nil {
		return
	}
	start, stop := n.StartPosition(), n.EndPosition()
	begin = astmodel.Location{File: v.file, Line: int(start.Row) + 1, Column: int(start.Column) + 1}
	end = astmodel.Location{File: v.file, Line: int(stop.Row) + 1, Column: int(stop.Column) + 1}
	return
}

// visitTranslationUnit builds the synthetic Unknown root and recurses
// into top-level declarations with an empty namespace prefix.
func (v *visitor) visitTranslationUnit(root *tree_sitter.Node) *astmodel.Node {
	tu := astmodel.NewRoot(v.file)
	v.visitChildren(root, tu, "")
	tu.PropagateLogging()
	return tu
}

// visitChildren dispatches every child of n under the given namespace
// prefix, appending produced nodes to parent. extern "C" blocks
// (linkage_specification) are transparent: their children are visited
// under the SAME prefix and parent, never as a node of their own.
func (v *visitor) visitChildren(n *tree_sitter.Node, parent *astmodel.Node, prefix string) {
	if n == nil {
		return
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		v.visitDecl(child, parent, prefix)
	}
}

func (v *visitor) visitDecl(n *tree_sitter.Node, parent *astmodel.Node, prefix string) {
	switch n.Kind() {
	case "namespace_definition":
		v.visitNamespace(n, parent, prefix)
	case "linkage_specification":
		// extern "C" { ... } — transparent: recurse with the same prefix
		// and parent, producing no node of its own.
		if body := n.ChildByFieldName("body"); body != nil {
			v.visitChildren(body, parent, prefix)
		} else {
			// extern "C" void f(); with no braces: the single declaration
			// is a direct child, not under a "body" field.
			v.visitChildren(n, parent, prefix)
		}
	case "function_definition":
		if fn := v.visitFunction(n, prefix); fn != nil {
			parent.AddChild(fn)
		}
	case "declaration":
		// Function prototypes and variable declarations at namespace scope.
		if decl := v.visitDeclaration(n, prefix); decl != nil {
			parent.AddChild(decl)
		}
	case "class_specifier", "struct_specifier":
		v.visitClassBody(n, parent, prefix)
	case "template_declaration":
		// Skip the template<...> header and visit the templated
		// declaration itself under the same prefix.
		if count := n.ChildCount(); count > 0 {
			v.visitDecl(n.Child(count-1), parent, prefix)
		}
	default:
		// Preprocessor directives, comments, and other declarations the
		// coverage model does not care about are silently skipped.
	}
}

func (v *visitor) visitNamespace(n *tree_sitter.Node, parent *astmodel.Node, prefix string) {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = v.text(nameNode)
	}
	childPrefix := prefix
	if name != "" {
		if prefix == "" {
			childPrefix = name
		} else {
			childPrefix = prefix + "::" + name
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		v.visitChildren(body, parent, childPrefix)
	}
}

func (v *visitor) visitClassBody(n *tree_sitter.Node, parent *astmodel.Node, prefix string) {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = v.text(nameNode)
	}
	childPrefix := prefix
	if name != "" {
		if prefix == "" {
			childPrefix = name
		} else {
			childPrefix = prefix + "::" + name
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	count := body.ChildCount()
	for i := uint(0); i < count; i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			if fn := v.visitMethod(child, childPrefix); fn != nil {
				parent.AddChild(fn)
			}
		case "field_declaration_list":
			v.visitClassBody(child, parent, childPrefix)
		default:
			v.visitDecl(child, parent, childPrefix)
		}
	}
}

// functionName extracts a function_definition's name, handling both the
// direct "name" field (simple declarators) and the nested
// declarator->declarator chain function_declarator wraps it in.
func (v *visitor) functionName(n *tree_sitter.Node) string {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return v.text(nameNode)
	}
	declarator := n.ChildByFieldName("declarator")
	for declarator != nil {
		if declarator.Kind() == "function_declarator" {
			if inner := declarator.ChildByFieldName("declarator"); inner != nil {
				return v.text(inner)
			}
		}
		inner := declarator.ChildByFieldName("declarator")
		if inner == nil {
			break
		}
		declarator = inner
	}
	return ""
}

func (v *visitor) visitFunction(n *tree_sitter.Node, prefix string) *astmodel.Node {
	name := v.functionName(n)
	if name == "" {
		return nil
	}
	fullName := name
	if prefix != "" {
		fullName = prefix + "::" + name
	}
	begin, end := v.location(n)
	fn := astmodel.NewNode(astmodel.KindFunction, fullName, begin, end, v.text(n))
	if body := n.ChildByFieldName("body"); body != nil {
		v.visitStatementChildren(body, fn, fullName)
	}
	return fn
}

func (v *visitor) visitMethod(n *tree_sitter.Node, prefix string) *astmodel.Node {
	fn := v.visitFunction(n, prefix)
	if fn == nil {
		return nil
	}
	fn.Kind = astmodel.KindMethod
	return fn
}

func (v *visitor) visitDeclaration(n *tree_sitter.Node, prefix string) *astmodel.Node {
	begin, end := v.location(n)
	name := prefix
	return astmodel.NewNode(astmodel.KindDeclaration, name, begin, end, v.text(n))
}

// visitStatementChildren walks every child statement of a compound
// block (or any statement container) and appends produced nodes.
func (v *visitor) visitStatementChildren(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	if n == nil {
		return
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		v.visitStatement(child, parent, ctx)
	}
}

func (v *visitor) visitStatement(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	switch n.Kind() {
	case "compound_statement":
		begin, end := v.location(n)
		block := astmodel.NewNode(astmodel.KindCompoundStmt, ctx, begin, end, "")
		v.visitStatementChildren(n, block, ctx)
		parent.AddChild(block)
	case "if_statement":
		v.visitIf(n, parent, ctx)
	case "switch_statement":
		v.visitSwitch(n, parent, ctx)
	case "for_statement", "for_range_loop":
		v.visitLoop(n, astmodel.KindFor, parent, ctx)
	case "while_statement":
		v.visitLoop(n, astmodel.KindWhile, parent, ctx)
	case "do_statement":
		v.visitLoop(n, astmodel.KindDo, parent, ctx)
	case "try_statement":
		v.visitTry(n, parent, ctx)
	case "expression_statement":
		v.visitExpressionStatement(n, parent, ctx)
	case "declaration":
		parent.AddChild(v.visitDeclaration(n, ctx))
	case "return_statement":
		v.visitExpressionStatement(n, parent, ctx)
	default:
		// Labeled statements, break/continue, etc. carry no coverage
		// semantics of their own; descend in case they contain blocks.
		if n.ChildCount() > 0 {
			v.visitStatementChildren(n, parent, ctx)
		}
	}
}

func (v *visitor) visitIf(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	guard := ""
	if cond := n.ChildByFieldName("condition"); cond != nil {
		guard = v.text(cond)
	}
	ifNode := astmodel.NewNode(astmodel.KindIf, guard, begin, end, v.text(n))
	if cons := n.ChildByFieldName("consequence"); cons != nil {
		v.visitStatement(cons, ifNode, ctx)
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		eBegin, eEnd := v.location(alt)
		elseNode := astmodel.NewNode(astmodel.KindElse, "", eBegin, eEnd, v.text(alt))
		v.visitStatement(alt, elseNode, ctx)
		ifNode.AddChild(elseNode)
	}
	parent.AddChild(ifNode)
}

func (v *visitor) visitSwitch(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	switchNode := astmodel.NewNode(astmodel.KindSwitch, "", begin, end, v.text(n))
	body := n.ChildByFieldName("body")
	if body != nil {
		count := body.ChildCount()
		for i := uint(0); i < count; i++ {
			child := body.Child(i)
			if child == nil {
				continue
			}
			if child.Kind() == "case_statement" {
				v.visitCase(child, switchNode, ctx)
			}
		}
	}
	parent.AddChild(switchNode)
}

func (v *visitor) visitCase(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	guard := ""
	if val := n.ChildByFieldName("value"); val != nil {
		guard = v.text(val)
	}
	caseNode := astmodel.NewNode(astmodel.KindCase, guard, begin, end, v.text(n))
	v.visitStatementChildren(n, caseNode, ctx)
	parent.AddChild(caseNode)
}

func (v *visitor) visitLoop(n *tree_sitter.Node, kind astmodel.NodeKind, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	loopNode := astmodel.NewNode(kind, "", begin, end, v.text(n))
	if body := n.ChildByFieldName("body"); body != nil {
		v.visitStatement(body, loopNode, ctx)
	}
	parent.AddChild(loopNode)
}

func (v *visitor) visitTry(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	tryNode := astmodel.NewNode(astmodel.KindTry, "", begin, end, v.text(n))
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "compound_statement":
			v.visitStatement(child, tryNode, ctx)
		case "catch_clause":
			v.visitCatch(child, tryNode, ctx)
		}
	}
	parent.AddChild(tryNode)
}

func (v *visitor) visitCatch(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	begin, end := v.location(n)
	catchNode := astmodel.NewNode(astmodel.KindCatch, "", begin, end, v.text(n))
	if body := n.ChildByFieldName("body"); body != nil {
		v.visitStatement(body, catchNode, ctx)
	}
	parent.AddChild(catchNode)
}

// visitExpressionStatement descends into an expression statement looking
// for call_expression nodes. Classification into CallExpr vs LogCallExpr
// happens later in internal/logident, which walks the produced tree; the
// visitor itself only records that a call occurred, at KindCallExpr —
// logident promotes matching calls to KindLogCallExpr in place.
func (v *visitor) visitExpressionStatement(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	v.findCalls(n, parent, ctx)
}

// findCalls recurses into n and records each call_expression it reaches
// as a KindCallExpr child of parent. It descends into every other node
// kind, lambda bodies included, but not into a call's own subtree: a call
// nested inside another call's arguments is not recorded.
func (v *visitor) findCalls(n *tree_sitter.Node, parent *astmodel.Node, ctx string) {
	if n == nil {
		return
	}
	if n.Kind() == "call_expression" {
		begin, end := v.location(n)
		name := ""
		if fn := n.ChildByFieldName("function"); fn != nil {
			name = v.text(fn)
		}
		call := astmodel.NewNode(astmodel.KindCallExpr, name, begin, end, v.text(n))
		parent.AddChild(call)
		return
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		v.findCalls(n.Child(i), parent, ctx)
	}
}
