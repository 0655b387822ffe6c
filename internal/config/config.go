// Package config loads server and CLI configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the import service.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// ProjectID selects the Firestore backend when set; otherwise the
	// SQLite backend at DatabasePath is used.
	ProjectID         string   `yaml:"project_id"`
	DatabasePath      string   `yaml:"database_path"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		DatabasePath:      "ofximport.db",
		MaxUploadBytes:    50 << 20, // 50 MiB
		AllowedExtensions: []string{".ofx", ".qfx"},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field-level constraints.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed_extensions cannot be empty")
	}
	for _, ext := range c.AllowedExtensions {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("allowed extension %q must start with a dot", ext)
		}
	}
	return nil
}
