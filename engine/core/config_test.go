package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, uint32(1440), cfg.Application.Width)
	assert.Equal(t, uint32(810), cfg.Application.Height)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[application]
width = 800
height = 600

[log]
level = "warn"

[renderer]
fence_poll_interval_us = 1000
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	assert.Equal(t, uint32(600), cfg.Application.Height)
	assert.Equal(t, "Voxen", cfg.Application.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, int64(1000), cfg.FencePollInterval().Microseconds())
	assert.Equal(t, "assets/shaders", cfg.Assets.ShaderDir)
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
[renderer]
msaa = 4
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Application.Width = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Renderer.FencePollIntervalUS = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Assets.FileWorkers = -1
	assert.Error(t, cfg.Validate())
}
