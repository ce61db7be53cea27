package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintfNoOutputWhenDisabled(t *testing.T) {
	SetQuiet(true)
	defer SetQuiet(false)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Printf("hello %s", "world")
	assert.Empty(t, buf.String())
}

func TestLogWritesComponentTag(t *testing.T) {
	SetQuiet(false)
	t.Setenv("DEBUG", "1")

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Log("CACHE", "evicted %s", "a.cpp")
	assert.Contains(t, buf.String(), "[DEBUG:CACHE]")
	assert.Contains(t, buf.String(), "evicted a.cpp")
}

func TestFatalReturnsErrorWithoutExiting(t *testing.T) {
	err := Fatal("disk on fire: %d", 42)
	assert.ErrorContains(t, err, "disk on fire: 42")
}
