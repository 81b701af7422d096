// Package config loads the yaml configuration shared by every heartrisk command.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"heartrisk/logging"
	"heartrisk/ml"
)

type Config struct {
	Http struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Model struct {
		Dir          string `yaml:"dir"`
		ModelFile    string `yaml:"model_file"`
		MetadataFile string `yaml:"metadata_file"`
		DataPath     string `yaml:"data_path"`
		Encoding     string `yaml:"encoding"`
		Watch        bool   `yaml:"watch"`
	} `yaml:"model"`
	Training struct {
		ml.ForestParams `yaml:",inline"`
		TestRatio       float64 `yaml:"test_ratio"`
		StrictCleaning  bool    `yaml:"strict_cleaning"`
	} `yaml:"training"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log logging.Options `yaml:"log"`
}

// Load decodes path over the defaults, so keys absent from the file keep
// their default and explicit zero values (random_state: 0, max_depth: 0 for
// unlimited, cache.size: 0 to disable) are honoured. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	c := &Config{}
	c.Http.Host = "localhost"
	c.Http.Port = 8501
	c.Http.Timeout = 30 * time.Second
	c.Http.MaxBodyBytes = 1 << 20
	c.Http.AllowedOrigins = []string{"*"}

	c.Model.Dir = "models"
	c.Model.ModelFile = "heart_disease_pipeline.json"
	c.Model.MetadataFile = "model_metadata.json"
	c.Model.DataPath = filepath.Join("data", "heart_disease_selected.csv")
	c.Model.Encoding = "utf-8"
	c.Model.Watch = true

	c.Training.ForestParams = ml.DefaultForestParams()
	c.Training.TestRatio = 0.2

	c.Database.Path = filepath.Join("data", "heartrisk.db")
	c.Cache.Size = 512
	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

func (c *Config) Validate() error {
	if c.Http.Port < 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio %v must be in (0,1)", c.Training.TestRatio)
	}
	if c.Http.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	if c.Training.NEstimators < 1 {
		return fmt.Errorf("training.n_estimators must be positive")
	}
	if _, err := c.Training.ResolveMaxFeatures(len(ml.FeatureNames())); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	return nil
}

func (c *Config) ModelPath() string {
	return filepath.Join(c.Model.Dir, c.Model.ModelFile)
}

func (c *Config) MetadataPath() string {
	return filepath.Join(c.Model.Dir, c.Model.MetadataFile)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Http.Host, c.Http.Port)
}
