// Package debug provides process-wide, opt-in diagnostic logging for the
// analysis engine. It is a no-op unless explicitly enabled, so the hot
// path (parsing, identification, coverage folding) never pays for
// formatting output nobody asked for.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug can be set at build time:
// go build -ldflags "-X github.com/dlogcover/dlogcover/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	writer io.Writer
	quiet  bool
)

// SetQuiet suppresses all debug output regardless of EnableDebug/DEBUG,
// mirroring the CLI's -q/--quiet flag.
func SetQuiet(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = enabled
}

// SetOutput sets the writer debug lines are sent to. Pass nil to disable.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	writer = w
}

// Enabled reports whether debug output would currently be emitted.
func Enabled() bool {
	mu.Lock()
	q := quiet
	mu.Unlock()
	if q {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func out() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return writer
}

// Printf writes an unstructured debug line.
func Printf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := out()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format+"\n", args...)
}

// Log writes a component-tagged debug line, e.g. Log("cache", "evicted %s", path).
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := out()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

func LogScan(format string, args ...interface{})    { Log("SCAN", format, args...) }
func LogParse(format string, args ...interface{})   { Log("PARSE", format, args...) }
func LogCache(format string, args ...interface{})   { Log("CACHE", format, args...) }
func LogAnalyze(format string, args ...interface{}) { Log("ANALYZE", format, args...) }
func LogPool(format string, args ...interface{})    { Log("POOL", format, args...) }

// Fatal formats a fatal condition as an error for the caller to return; it
// never calls os.Exit so library code stays testable and composable.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	Log("FATAL", "%s", msg)
	return fmt.Errorf("fatal error: %s", msg)
}

// FatalAndExit is reserved for cmd/dlogcover/main.go: it logs and exits
// the process with status 1, per the CLI's exit-code contract.
func FatalAndExit(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "dlogcover: %s\n", msg)
	os.Exit(1)
}
