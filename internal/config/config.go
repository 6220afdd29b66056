// Package config loads vnmeta settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ryanm101/vnmeta/internal/logging"
	"github.com/ryanm101/vnmeta/internal/media"
	"github.com/ryanm101/vnmeta/internal/vndb"
	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath     = "vnmeta.db"
	defaultMediaDir   = "media"
	defaultListenAddr = "127.0.0.1:8080"
)

// Config holds application configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	MediaDir string         `yaml:"media_dir"`
	Logging  logging.Config `yaml:"logging"`
	VNDB     vndb.Config    `yaml:"vndb"`
	Images   media.Config   `yaml:"images"`
	Server   ServerConfig   `yaml:"server"`
}

// ServerConfig holds settings for the HTTP server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:   defaultDBPath,
		MediaDir: defaultMediaDir,
		Logging:  logging.DefaultConfig(),
		VNDB:     vndb.DefaultConfig(),
		Images:   media.DefaultConfig(),
		Server:   ServerConfig{ListenAddr: defaultListenAddr},
	}
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".vnmeta.yaml",
		".vnmeta.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "vnmeta", "config.yaml"),
			filepath.Join(home, ".config", "vnmeta", "config.yml"),
			filepath.Join(home, ".vnmeta.yaml"),
		)
	}

	return paths
}

// Load loads configuration from file or returns defaults.
// Priority: env VNMETA_CONFIG > search paths > defaults
func Load() (*Config, error) {
	if envPath := os.Getenv("VNMETA_CONFIG"); envPath != "" {
		return LoadFile(envPath)
	}

	cfg := DefaultConfig()
	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dbPath := os.Getenv("VNMETA_DB"); dbPath != "" {
		c.DBPath = dbPath
	}
	if mediaDir := os.Getenv("VNMETA_MEDIA_DIR"); mediaDir != "" {
		c.MediaDir = mediaDir
	}
	if baseURL := os.Getenv("VNDB_BASE_URL"); baseURL != "" {
		c.VNDB.BaseURL = baseURL
	}
	if addr := os.Getenv("VNMETA_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil { //nolint:gosec // Standard dir permissions
			return err
		}
	}
	return os.WriteFile(path, data, 0644) // #nosec G306
}

// WriteExample writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	return DefaultConfig().Save(path)
}

// GetDBPath returns the database path, applying defaults.
func (c *Config) GetDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return defaultDBPath
}

// GetMediaDir returns the directory cover images are stored in.
func (c *Config) GetMediaDir() string {
	if c.MediaDir != "" {
		return c.MediaDir
	}
	return defaultMediaDir
}

// GetListenAddr returns the HTTP listen address.
func (c *Config) GetListenAddr() string {
	if c.Server.ListenAddr != "" {
		return c.Server.ListenAddr
	}
	return defaultListenAddr
}
