// Package config loads the YAML configuration for the CLI and server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"penguinoracle/logging"
	"penguinoracle/ml"
	"penguinoracle/penguin"
)

const DefaultPath = "config.yaml"

type Config struct {
	Model    ModelConfig           `yaml:"model"`
	Http     HttpConfig            `yaml:"http"`
	Database DatabaseConfig        `yaml:"database"`
	Log      LogConfig             `yaml:"log"`
	Input    penguin.FeatureVector `yaml:"input"`
}

type ModelConfig struct {
	Type         string        `yaml:"type"`
	Path         string        `yaml:"path"`
	MetadataPath string        `yaml:"metadata_path"`
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheSize    int           `yaml:"cache_size"`
	Watch        bool          `yaml:"watch"`
	OnnxLibrary  string        `yaml:"onnx_library"`
}

type HttpConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	JSON       bool   `yaml:"json"`
}

func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Type:      ml.ModelTypeLinear,
			Path:      filepath.Join("models", "model_penguins.json"),
			Timeout:   10 * time.Second,
			CacheSize: 1024,
			Watch:     true,
		},
		Http: HttpConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Database: DatabaseConfig{
			Path: filepath.Join("data", "predictions.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
		Input: penguin.FeatureVector{
			FlipperLengthMM: 200,
			Species:         penguin.Chinstrap,
			Sex:             penguin.Female,
		},
	}
}

// Load reads path over the defaults. An empty path searches for
// config.yaml in the working directory and its parent, and falls back to
// the defaults when neither exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = locate()
		if path == "" {
			return cfg, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Look for config in root even if run from cmd/
func locate() string {
	for _, candidate := range []string{DefaultPath, filepath.Join("..", DefaultPath)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// resolvePaths makes relative file paths relative to the config file.
func (c *Config) resolvePaths(dir string) {
	if dir == "." || dir == "" {
		return
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || p == ":memory:" {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Model.Path = resolve(c.Model.Path)
	c.Model.MetadataPath = resolve(c.Model.MetadataPath)
	c.Database.Path = resolve(c.Database.Path)
	c.Log.File = resolve(c.Log.File)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Type {
	case ml.ModelTypeLinear:
		if c.Model.Path == "" {
			errs = append(errs, errors.New("model.path is required for linear models"))
		}
	case ml.ModelTypeONNX:
		if c.Model.Path == "" || c.Model.MetadataPath == "" {
			errs = append(errs, errors.New("model.path and model.metadata_path are required for onnx models"))
		}
	case ml.ModelTypeRemote:
		if c.Model.Endpoint == "" {
			errs = append(errs, errors.New("model.endpoint is required for remote models"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.type %q is not one of linear, onnx, remote", c.Model.Type))
	}

	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d is out of range", c.Http.Port))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ML converts the model section for ml.LoadModel.
func (m ModelConfig) ML() ml.ModelConfig {
	return ml.ModelConfig{
		Type:         m.Type,
		Path:         m.Path,
		MetadataPath: m.MetadataPath,
		Endpoint:     m.Endpoint,
		Timeout:      m.Timeout,
		OnnxLibrary:  m.OnnxLibrary,
	}
}

func (l LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		JSON:       l.JSON,
	}
}
