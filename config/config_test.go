package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200.0, cfg.Input.FlipperLengthMM)
	assert.Equal(t, "Chinstrap", cfg.Input.Species)
	assert.Equal(t, "Female", cfg.Input.Sex)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  type: remote
  endpoint: http://localhost:9000/predict
  timeout: 2s
http:
  port: 9090
input:
  flipper_length_mm: 160
  species: Adelie
  sex: Male
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "remote", cfg.Model.Type)
	assert.Equal(t, 2*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 9090, cfg.Http.Port)
	assert.Equal(t, 30*time.Second, cfg.Http.Timeout)
	assert.Equal(t, 1024, cfg.Model.CacheSize)
	assert.Equal(t, 160.0, cfg.Input.FlipperLengthMM)
	assert.Equal(t, "Adelie", cfg.Input.Species)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `
model:
  type: linear
  path: models/model_penguins.json
database:
  path: /var/lib/penguins/predictions.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "models", "model_penguins.json"), cfg.Model.Path)
	assert.Equal(t, "/var/lib/penguins/predictions.db", cfg.Database.Path)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "model: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown model type", func(c *Config) { c.Model.Type = "pickle" }},
		{"linear without path", func(c *Config) { c.Model.Path = "" }},
		{"onnx without metadata", func(c *Config) { c.Model.Type = "onnx"; c.Model.MetadataPath = "" }},
		{"remote without endpoint", func(c *Config) { c.Model.Type = "remote"; c.Model.Endpoint = "" }},
		{"bad port", func(c *Config) { c.Http.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModelConfigML(t *testing.T) {
	cfg := Default()
	mc := cfg.Model.ML()
	assert.Equal(t, cfg.Model.Type, mc.Type)
	assert.Equal(t, cfg.Model.Path, mc.Path)
	assert.Equal(t, cfg.Model.Timeout, mc.Timeout)
}
