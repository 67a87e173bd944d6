// Package config loads framegrab settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "framegrab"

// Config is the file-level configuration. Command-line flags override it.
type Config struct {
	// Output
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`
	Quality   string `yaml:"quality"`
	Resize    string `yaml:"resize"`

	// Archive
	Archive      string `yaml:"archive"`
	Streaming    bool   `yaml:"streaming"`
	UseDuplicate bool   `yaml:"use_duplicate"`
	ClearQueue   bool   `yaml:"clear_queue"`
	QueuePath    string `yaml:"queue_path"`

	// Frame rate
	FPS      int    `yaml:"fps"`
	TieBreak string `yaml:"tie_break"`

	// Transport
	Listen       string      `yaml:"listen"`
	AckTimeoutMs int         `yaml:"ack_timeout_ms"`
	ChunkSize    int         `yaml:"chunk_size"`
	Redis        RedisConfig `yaml:"redis"`
	Cache        CacheConfig `yaml:"cache"`

	// Delivery
	Opener     string `yaml:"opener"`
	ChromePath string `yaml:"chrome_path"`
	Headless   bool   `yaml:"headless"`

	// Seeking and decoding
	SettleTimeoutMs int    `yaml:"settle_timeout_ms"`
	FFmpegPath      string `yaml:"ffmpeg_path"`

	// History
	LedgerPath string `yaml:"ledger_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// RedisConfig points the ack bus and cache at a Redis server. An empty
// Addr keeps everything in process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig enables the downloader route that proxies an upstream origin
// and falls back to a cached copy when the network fails.
type CacheConfig struct {
	Upstream string `yaml:"upstream"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		OutputDir: xdg.UserDirs.Download,
		Format:    "jpeg",
		Quality:   "medium",

		Archive:      "zip",
		Streaming:    true,
		UseDuplicate: true,
		QueuePath:    filepath.Join(xdg.DataHome, appName, "queue.yaml"),

		TieBreak: "first",

		Listen:       "127.0.0.1:0",
		AckTimeoutMs: 10000,
		ChunkSize:    256 * 1024,
		Redis:        RedisConfig{Prefix: appName},
		Cache:        CacheConfig{TTLSec: 3600},

		Opener:   "fetch",
		Headless: true,

		SettleTimeoutMs: 5000,

		LedgerPath: filepath.Join(xdg.DataHome, appName, "jobs.db"),

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/framegrab/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// LoadFromFile loads configuration from a YAML file on top of Defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Load reads path, or the default path when empty. A missing default file
// is not an error.
func Load(path string) (Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg, err := LoadFromFile(DefaultPath())
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}
