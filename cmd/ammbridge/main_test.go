package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

func TestParseFlagsDefaults(t *testing.T) {
	cli, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cli.LogLevel)
	assert.Equal(t, "json", cli.LogFormat)
	assert.Equal(t, 10*time.Second, cli.ShutdownTimeout)
	assert.Empty(t, cli.ConfigPath)
	require.NoError(t, validateFlags(cli))
}

func TestParseFlagsDebugOverridesLevel(t *testing.T) {
	cli, err := parseFlags([]string{"--debug", "--log-level=warn", "--manikin=manikin_2"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "manikin_2", cli.ManikinID)
}

func TestParseFlagsEnvFallback(t *testing.T) {
	t.Setenv("AMMBRIDGE_LOG_FORMAT", "text")
	t.Setenv("AMMBRIDGE_SHUTDOWN_TIMEOUT", "3s")

	cli, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "text", cli.LogFormat)
	assert.Equal(t, 3*time.Second, cli.ShutdownTimeout)
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name string
		cli  CLIConfig
	}{
		{"bad level", CLIConfig{LogLevel: "trace", LogFormat: "json", ShutdownTimeout: time.Second}},
		{"bad format", CLIConfig{LogLevel: "info", LogFormat: "xml", ShutdownTimeout: time.Second}},
		{"missing file", CLIConfig{ConfigPath: "/nonexistent/ammbridge.yaml", LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}},
		{"zero timeout", CLIConfig{LogLevel: "info", LogFormat: "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateFlags(&tt.cli))
		})
	}
}

func TestLoadConfigManikinOverride(t *testing.T) {
	cli := &CLIConfig{ManikinID: "manikin_7"}
	cfg, err := loadConfig(cli)
	require.NoError(t, err)
	assert.Equal(t, "manikin_7", cfg.Bridge.ManikinID)
}

func TestLoadConfigRequiresManikin(t *testing.T) {
	_, err := loadConfig(&CLIConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestReadDocument(t *testing.T) {
	data, err := readDocument("")
	require.NoError(t, err)
	assert.Nil(t, data)

	path := filepath.Join(t.TempDir(), "caps.xml")
	require.NoError(t, os.WriteFile(path, []byte("<AMMModuleCapabilities/>"), 0o600))
	data, err = readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "<AMMModuleCapabilities/>", string(data))

	_, err = readDocument(filepath.Join(t.TempDir(), "missing.xml"))
	assert.True(t, errors.IsInvalid(err))
}

func TestNewLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
}
