// Package errors defines the typed error taxonomy used across dlogcover's
// analysis engine. Each kind carries enough context for a caller to decide
// whether to skip, degrade, or abort, matching the policy table in the
// specification's error handling design.
package errors

import (
	"fmt"
	"time"
)

// Kind identifies which policy bucket an error belongs to.
type Kind string

const (
	KindFile              Kind = "file"
	KindConfig            Kind = "config"
	KindCompileDb         Kind = "compile_db"
	KindParse             Kind = "parse"
	KindAnalysis          Kind = "analysis"
	KindCacheInconsistent Kind = "cache_inconsistency"
	KindPoolStopped       Kind = "pool_stopped"
	KindReport            Kind = "report"
)

// FileError wraps a failure from the file utilities or source manager.
// Policy: logged and skipped per-file; never aborts the run.
type FileError struct {
	Op         string
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Op, e.Path, e.Underlying)
}

func (e *FileError) Unwrap() error { return e.Underlying }

// ConfigError is fatal: it aborts the run before analysis begins.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config error for field %s: %v", e.Field, e.Underlying)
	}
	return fmt.Sprintf("config error for field %s (value %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// CompileDbError signals that the compile database is missing, malformed,
// or missing an entry. Policy: degrade to heuristic args and continue.
type CompileDbError struct {
	Reason     string // "missing" | "malformed" | "file_unknown"
	Path       string
	Underlying error
}

func NewCompileDbError(reason, path string, err error) *CompileDbError {
	return &CompileDbError{Reason: reason, Path: path, Underlying: err}
}

func (e *CompileDbError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("compile database %s (%s): %v", e.Reason, e.Path, e.Underlying)
	}
	return fmt.Sprintf("compile database %s (%s)", e.Reason, e.Path)
}

func (e *CompileDbError) Unwrap() error { return e.Underlying }

// ParseError records a frontend diagnostic. Policy: record as a
// zero-covered file with an error note; continue with other files.
type ParseError struct {
	FilePath   string
	Line       int
	Column     int
	Message    string
	Underlying error
}

func NewParseError(path string, line, column int, message string, err error) *ParseError {
	return &ParseError{FilePath: path, Line: line, Column: column, Message: message, Underlying: err}
}

func (e *ParseError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("parse error at %s:%d:%d: %s: %v", e.FilePath, e.Line, e.Column, e.Message, e.Underlying)
	}
	return fmt.Sprintf("parse error at %s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// AnalysisError records a failure inside the visitor, identifier, or
// coverage stages for a single function. Policy: record as uncovered,
// log, continue.
type AnalysisError struct {
	FilePath   string
	Function   string
	Stage      string // "visit" | "identify" | "coverage"
	Underlying error
}

func NewAnalysisError(path, function, stage string, err error) *AnalysisError {
	return &AnalysisError{FilePath: path, Function: function, Stage: stage, Underlying: err}
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis error in %s stage for %s (%s): %v", e.Stage, e.Function, e.FilePath, e.Underlying)
}

func (e *AnalysisError) Unwrap() error { return e.Underlying }

// CacheInconsistencyError is never surfaced to callers; the cache flushes
// itself and reports a miss. It exists so internal code can log the event
// through the same typed-error path as everything else.
type CacheInconsistencyError struct {
	Detail string
}

func NewCacheInconsistencyError(detail string) *CacheInconsistencyError {
	return &CacheInconsistencyError{Detail: detail}
}

func (e *CacheInconsistencyError) Error() string {
	return fmt.Sprintf("AST cache inconsistency, flushing: %s", e.Detail)
}

// PoolStoppedError is a programmer error: submitting to a shut-down pool.
type PoolStoppedError struct{}

func (e *PoolStoppedError) Error() string { return "submit on stopped worker pool" }

// ReportError is fatal after analysis; analysis results are preserved
// even though the report could not be written.
type ReportError struct {
	Format     string
	Path       string
	Underlying error
}

func NewReportError(format, path string, err error) *ReportError {
	return &ReportError{Format: format, Path: path, Underlying: err}
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("failed to generate %s report at %s: %v", e.Format, e.Path, e.Underlying)
}

func (e *ReportError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent per-file/per-function errors so the
// orchestrator can report "what succeeded" without losing what didn't.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

func (e *MultiError) Unwrap() []error { return e.Errors }
