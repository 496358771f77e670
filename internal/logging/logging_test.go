package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"github.com/ytakahashi/todo-api/internal/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	_, _, err := New(config.Log{Level: "chatty"})
	require.Error(t, err)
}

func TestNewSetsLevel(t *testing.T) {
	t.Parallel()
	logger, closer, err := New(config.Log{Level: "WARN"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })
	require.Equal(t, log.WarnLevel, logger.GetLevel())
}

func TestNewWritesToFile(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "logs", "todo.log")

	logger, closer, err := New(config.Log{Level: "info", Format: "json", File: file})
	require.NoError(t, err)
	logger.Info("created todo", "id", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "created todo")
	require.Contains(t, string(data), `"id"`)
}

func TestParseFormatter(t *testing.T) {
	t.Parallel()
	require.Equal(t, log.JSONFormatter, ParseFormatter("JSON"))
	require.Equal(t, log.LogfmtFormatter, ParseFormatter("logfmt"))
	require.Equal(t, log.TextFormatter, ParseFormatter(""))
}
