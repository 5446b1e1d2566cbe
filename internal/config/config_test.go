package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracelatency/pkg/api"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := FromEnv(lookupFrom(nil))
	assert.Equal(t, api.LastPaint, c.Mode)
	assert.Equal(t, api.DefaultFrameBudgetMS, c.FrameBudgetMS)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, 4, c.Concurrency)
	assert.Empty(t, c.Warnings)
}

func TestFromEnvOverrides(t *testing.T) {
	c := FromEnv(lookupFrom(map[string]string{
		EnvMode:         "FIRST_PAINT_AFTER_LAYOUT",
		EnvFrameBudget:  "33.3",
		EnvMaxBytes:     "1024",
		EnvLogLevel:     "debug",
		EnvLogFormat:    "JSON",
		EnvConcurrency:  "8",
		EnvOTLPEndpoint: "http://localhost:4318",
	}))
	assert.Equal(t, api.FirstPaintAfterLayout, c.Mode)
	assert.Equal(t, 33.3, c.FrameBudgetMS)
	assert.Equal(t, int64(1024), c.MaxBytes)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, 8, c.Concurrency)
	assert.Equal(t, "http://localhost:4318", c.OTLPEndpoint)
	assert.Empty(t, c.Warnings)
	assert.Equal(t, api.Options{Mode: api.FirstPaintAfterLayout, FrameBudgetMS: 33.3}, c.Options())
}

func TestFromEnvInvalidFallsBack(t *testing.T) {
	c := FromEnv(lookupFrom(map[string]string{
		EnvMode:        "median",
		EnvFrameBudget: "-1",
		EnvMaxBytes:    "lots",
		EnvLogLevel:    "chatty",
		EnvLogFormat:   "xml",
		EnvConcurrency: "0",
	}))
	def := Default()
	assert.Equal(t, def.Mode, c.Mode)
	assert.Equal(t, def.FrameBudgetMS, c.FrameBudgetMS)
	assert.Equal(t, def.MaxBytes, c.MaxBytes)
	assert.Equal(t, def.LogLevel, c.LogLevel)
	assert.Equal(t, def.LogFormat, c.LogFormat)
	assert.Equal(t, def.Concurrency, c.Concurrency)
	assert.Len(t, c.Warnings, 6)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "tracelatency.env")
	require.NoError(t, os.WriteFile(envPath, []byte("TLAT_FRAME_BUDGET_MS=20\n"), 0o644))
	t.Setenv(EnvFile, envPath)
	t.Setenv(EnvMode, "first_paint_after_layout")
	t.Cleanup(func() { os.Unsetenv(EnvFrameBudget) })

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.FrameBudgetMS)
	assert.Equal(t, api.FirstPaintAfterLayout, c.Mode)
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "absent.env"))
	c, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, c)
}
