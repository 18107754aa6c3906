package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesToRotatingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "branchgraph.log")

	l, err := New(logPath)
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello %s", "world")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello world")
}

func TestLoggerQuietSuppressesConsoleNotFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "branchgraph.log")

	l, err := New(logPath)
	require.NoError(t, err)
	l.SetQuiet(true)
	require.True(t, l.IsQuiet())

	l.Info("still logged to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "still logged to file")
}
