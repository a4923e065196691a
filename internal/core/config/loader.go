package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Media.WorkDir == "" {
		cfg.Media.WorkDir = filepath.Join(os.TempDir(), "pipeline")
	}
	if cfg.Media.DownloadTimeout == 0 {
		cfg.Media.DownloadTimeout = Duration(30 * time.Minute)
	}
	if cfg.Media.ExtractTimeout == 0 {
		cfg.Media.ExtractTimeout = Duration(15 * time.Minute)
	}
	if cfg.Media.TranscribeTimeout == 0 {
		cfg.Media.TranscribeTimeout = Duration(2 * time.Hour)
	}
	if cfg.Segmentation.MaxLength == 0 {
		cfg.Segmentation.MaxLength = 500
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Jobs.MaxRetries == 0 {
		cfg.Jobs.MaxRetries = 5
	}
}
