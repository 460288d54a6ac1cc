/*
Package config loads server configuration from YAML.

PURPOSE:
  One file describes the server, the store, the tick cadences and any
  extra wage presets. Command-line flags in cmd/server override it.

FILE FORMAT:
  server:
    port: 8080
    cors_origins: ["http://localhost:5173"]
  store:
    path: touchfish.db
  ticker:
    interval: 1s
    mirror_interval: 20s
  presets:
    - name: contractor
      description: 95/hr, 30% tax
      wage: {income_type: hourly, hourly_rate: 95, tax_rate: 30}

DEFAULTS:
  A missing file is not an error: Default() is returned. Zero or missing
  fields in a present file are filled from Default().
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/warp/touchfish/factory"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Store   StoreConfig      `yaml:"store"`
	Ticker  TickerConfig     `yaml:"ticker"`
	Presets []factory.Preset `yaml:"presets,omitempty"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StoreConfig struct {
	// Path is the SQLite file; ":memory:" keeps everything in process.
	Path string `yaml:"path"`
}

type TickerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MirrorInterval time.Duration `yaml:"mirror_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Path: "touchfish.db",
		},
		Ticker: TickerConfig{
			Interval:       time.Second,
			MirrorInterval: 20 * time.Second,
		},
	}
}

// Load reads path. A missing file yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	return Parse(raw)
}

// Parse decodes YAML and fills unset fields from Default().
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Default(), fmt.Errorf("parse config yaml: %w", err)
	}
	fileCfg.applyDefaults(Default())
	if err := fileCfg.Validate(); err != nil {
		return Default(), err
	}
	return fileCfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	serialized, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}
	if err := os.WriteFile(path, serialized, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Ticker.Interval <= 0 {
		return fmt.Errorf("invalid ticker.interval %v", c.Ticker.Interval)
	}
	if c.Ticker.MirrorInterval < c.Ticker.Interval {
		return fmt.Errorf("ticker.mirror_interval %v shorter than ticker.interval %v",
			c.Ticker.MirrorInterval, c.Ticker.Interval)
	}
	for i, p := range c.Presets {
		if p.Name == "" {
			return fmt.Errorf("presets[%d]: missing name", i)
		}
	}
	return nil
}

func (c *Config) applyDefaults(d Config) {
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}
	if c.Ticker.Interval == 0 {
		c.Ticker.Interval = d.Ticker.Interval
	}
	if c.Ticker.MirrorInterval == 0 {
		c.Ticker.MirrorInterval = d.Ticker.MirrorInterval
	}
}
