package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelGatesLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debugf("dropped")
	l.Infof("dropped")
	l.Warnf("kept %d", 1)
	l.Errorf("kept %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "kept 1")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "kept 2")
}

func TestWithPETagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf}).WithPE(3)

	l.Infof("heap bound")
	assert.Contains(t, buf.String(), "[pe 3]")
}

func TestWithScopeTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf}).WithScope("proxy")

	l.Warnf("no handler")
	assert.Contains(t, buf.String(), "proxy: no handler")
}

func TestDerivedLoggersShareSink(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	base.WithPE(0).Infof("from pe 0")
	base.WithPE(1).WithScope("ring").Infof("from pe 1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[pe 0]")
	assert.Contains(t, lines[1], "[pe 1] ring:")
}

func TestUnconfiguredLoggerDefaults(t *testing.T) {
	l := NewLogger(nil)
	require.NotNil(t, l)
	assert.Equal(t, LevelInfo, l.level)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}
