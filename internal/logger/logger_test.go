package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLoggerRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := New(path, LevelWarn, false)
	require.NoError(t, err)

	l.Debug("should not appear")
	l.Warn("should appear")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "should not appear")
	assert.Contains(t, content, "should appear")
}

func TestLoggerTagPrefixesMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := New(path, LevelDebug, false)
	require.NoError(t, err)

	tagged := l.Tag("job:42")
	tagged.Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[job:42] started")
}

func TestLoggerTagNesting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := New(path, LevelDebug, false)
	require.NoError(t, err)

	nested := l.Tag("job:1").Tag("stage:verify")
	nested.Info("checking")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[job:1 stage:verify] checking")
}
