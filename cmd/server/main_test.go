package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/ytakahashi/todo-api/internal/config"
)

func parseFlags(t *testing.T, args ...string) (*cobra.Command, *flags) {
	t.Helper()
	f := &flags{}
	cmd := &cobra.Command{Use: "todo-api"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestLoadConfigBackendFlagOverridesEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	cmd, f := parseFlags(t)
	_, err := loadConfig(cmd, f)
	require.Error(t, err)

	cmd, f = parseFlags(t, "--backend", "Memory", "--port", "9000", "--log-level", "debug")
	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)
	require.Equal(t, config.BackendMemory, cfg.Store.Backend)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigValidatesFlags(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "")

	cmd, f := parseFlags(t, "--port", "70000")
	_, err := loadConfig(cmd, f)
	require.Error(t, err)
}
