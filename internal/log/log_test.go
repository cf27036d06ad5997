package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Info("hidden", "k", 1)
	Warn("shown", "k", 2)
	Error("failed", errors.New("boom"), "path", "/events")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown k=2")
	assert.Contains(t, out, "[ERROR] failed err=boom path=/events")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestOddKeyValuesIgnored(t *testing.T) {
	assert.Equal(t, " a=1", formatKVs("a", 1, "dangling"))
	assert.Equal(t, "", formatKVs(42, "x"))
}
