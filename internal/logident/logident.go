// Package logident identifies log calls within a parsed AST tree
// (spec component C8): it builds name→level/name→type tables from
// configuration, then walks a file's node tree promoting matching
// CallExpr nodes to LogCallExpr and recording a LogCall per match.
package logident

import (
	"strings"

	"github.com/dlogcover/dlogcover/internal/astmodel"
)

// LogLevel is the totally ordered severity a log call is classified
// into. Critical and Error compare equal, matching the original
// implementation's two overlapping enums collapsed into one ordered set.
type LogLevel uint8

const (
	LevelUnknown  LogLevel = 0
	LevelDebug    LogLevel = 1
	LevelInfo     LogLevel = 2
	LevelWarning  LogLevel = 3
	LevelCritical LogLevel = 4
	LevelError    LogLevel = 4 // Error and Critical are the same severity.
	LevelFatal    LogLevel = 5
	LevelAll      LogLevel = 6
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Info"
	case LevelWarning:
		return "Warning"
	case LevelCritical:
		return "Critical"
	case LevelFatal:
		return "Fatal"
	case LevelAll:
		return "All"
	default:
		return "Unknown"
	}
}

// LogType classifies which logging facility a call belongs to.
type LogType uint8

const (
	TypeUnknown LogType = iota
	TypeQt
	TypeQtCategory
	TypeCustom
)

func (t LogType) String() string {
	switch t {
	case TypeQt:
		return "Qt"
	case TypeQtCategory:
		return "QtCategory"
	case TypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// CallStyle distinguishes how a log call is written at the source level.
type CallStyle uint8

const (
	StyleUnknown CallStyle = iota
	StyleDirect
	StyleMacro
	StyleFunction
	StyleStream
	StyleFormat
)

// LogCall is a single identified logging invocation.
type LogCall struct {
	FunctionName string
	Level        LogLevel
	Type         LogType
	Style        CallStyle
	Location     astmodel.Location
	Message      string
	Category     string
	ContextPath  string
	ArgCount     int
	ArgPreview   string
}

// qtBuiltinNames lists Qt's free-function logging macros.
var qtBuiltinNames = []string{"qDebug", "qInfo", "qWarning", "qCritical", "qFatal"}

// qtCategoryNames lists Qt's category-logging macros; each takes a
// logging category object as its first argument.
var qtCategoryNames = []string{"qCDebug", "qCInfo", "qCWarning", "qCCritical"}

var qtBuiltinLevel = map[string]LogLevel{
	"qDebug":    LevelDebug,
	"qInfo":     LevelInfo,
	"qWarning":  LevelWarning,
	"qCritical": LevelCritical,
	"qFatal":    LevelFatal,
}

var qtCategoryLevel = map[string]LogLevel{
	"qCDebug":    LevelDebug,
	"qCInfo":     LevelInfo,
	"qCWarning":  LevelWarning,
	"qCCritical": LevelCritical,
}

// CustomFunctions maps a level name (as it appears in configuration:
// "debug", "info", "warning", "critical", "error", "fatal") to the set
// of function/macro names the project uses for that level.
type CustomFunctions map[string][]string

// Config is the subset of configuration the identifier's build phase
// consumes: which built-in sets are enabled and the custom name map.
type Config struct {
	QtEnabled     bool
	CustomEnabled bool
	Custom        CustomFunctions
}

var customLevelNames = map[string]LogLevel{
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warning":  LevelWarning,
	"critical": LevelCritical,
	"error":    LevelError,
	"fatal":    LevelFatal,
}

// Tables holds the built (name → LogLevel) and (name → LogType) maps the
// identification phase consults. Construct once per run via Build.
type Tables struct {
	level map[string]LogLevel
	typ   map[string]LogType
}

// Build constructs the name tables in the mandated order: Qt built-in,
// then Qt category, then custom. The three sources are assumed disjoint;
// a name repeated across sources keeps its first assignment.
func Build(cfg Config) *Tables {
	t := &Tables{level: make(map[string]LogLevel), typ: make(map[string]LogType)}

	if cfg.QtEnabled {
		for _, name := range qtBuiltinNames {
			t.addIfAbsent(name, qtBuiltinLevel[name], TypeQt)
		}
		for _, name := range qtCategoryNames {
			t.addIfAbsent(name, qtCategoryLevel[name], TypeQtCategory)
		}
	}

	if cfg.CustomEnabled {
		for levelName, names := range cfg.Custom {
			level, ok := customLevelNames[strings.ToLower(levelName)]
			if !ok {
				continue
			}
			for _, name := range names {
				t.addIfAbsent(name, level, TypeCustom)
			}
		}
	}

	return t
}

func (t *Tables) addIfAbsent(name string, level LogLevel, typ LogType) {
	if _, exists := t.level[name]; exists {
		return
	}
	t.level[name] = level
	t.typ[name] = typ
}

// Lookup returns the level and type registered for name, or
// (LevelUnknown, TypeUnknown, false) if name was never seen in Build.
func (t *Tables) Lookup(name string) (LogLevel, LogType, bool) {
	level, ok := t.level[name]
	if !ok {
		return LevelUnknown, TypeUnknown, false
	}
	return level, t.typ[name], true
}

func classifyStyle(typ LogType, text string) CallStyle {
	switch typ {
	case TypeQt, TypeQtCategory:
		if strings.Contains(text, "<<") {
			return StyleStream
		}
		return StyleMacro
	case TypeCustom:
		if strings.Contains(text, "%") || strings.Contains(text, "{}") {
			return StyleFormat
		}
		return StyleFunction
	default:
		return StyleDirect
	}
}

// Identify walks root, promoting every CallExpr node whose Name matches
// a table entry to LogCallExpr, recomputing has_logging, and returning
// the per-file list of LogCall records in source-text order.
func Identify(root *astmodel.Node, tables *Tables) []*LogCall {
	var calls []*LogCall
	walkWithContext(root, "", func(n *astmodel.Node, ctx string) {
		if n.Kind != astmodel.KindCallExpr {
			return
		}
		name := calleeName(n.Name)
		level, typ, ok := tables.Lookup(name)
		if !ok {
			return
		}
		n.Kind = astmodel.KindLogCallExpr
		call := &LogCall{
			FunctionName: name,
			Level:        level,
			Type:         typ,
			Style:        classifyStyle(typ, n.Text),
			Location:     n.Begin,
			Message:      extractMessage(n.Text),
			ContextPath:  ctx,
			ArgPreview:   preview(n.Text),
		}
		if typ == TypeQtCategory {
			call.Category = extractCategory(n.Text)
		}
		calls = append(calls, call)
	})
	root.PropagateLogging()
	return calls
}

// calleeName strips a qualifying scope/namespace prefix so "ns::qDebug"
// and "qDebug" both resolve against the same table entry, mirroring how
// unqualified macro calls are normally written but tolerating the rare
// explicitly-scoped form.
func calleeName(raw string) string {
	if idx := strings.LastIndex(raw, "::"); idx >= 0 {
		return raw[idx+2:]
	}
	return raw
}

// extractMessage locates the first string-literal argument in text
// (first '"..."'), honoring backslash escapes, without using regexp.
func extractMessage(text string) string {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '"' {
			start = i
			break
		}
	}
	if start == -1 {
		return ""
	}
	var b strings.Builder
	i := start + 1
	for i < len(text) {
		c := text[i]
		if c == '\\' && i+1 < len(text) {
			b.WriteByte(text[i+1])
			i += 2
			continue
		}
		if c == '"' {
			return b.String()
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// extractCategory returns the first bareword identifier argument before
// a stream operator, used by Qt category logging: qCDebug(category) <<
// "message" or qCDebug(category, "fmt", args).
func extractCategory(text string) string {
	open := strings.IndexByte(text, '(')
	if open == -1 {
		return ""
	}
	rest := text[open+1:]
	end := strings.IndexAny(rest, ",)")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

const previewLen = 80

func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	return text[:previewLen] + "..."
}

// walkWithContext pre-order walks n, tracking the nearest enclosing
// Function/Method name as the context path passed to fn.
func walkWithContext(n *astmodel.Node, ctx string, fn func(*astmodel.Node, string)) {
	childCtx := ctx
	if n.Kind == astmodel.KindFunction || n.Kind == astmodel.KindMethod {
		childCtx = n.Name
	}
	fn(n, childCtx)
	for _, c := range n.Children {
		walkWithContext(c, childCtx, fn)
	}
}
