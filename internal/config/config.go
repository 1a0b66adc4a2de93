// Package config loads engine configuration from a YAML file with Viper,
// the way the teacher's internal/config.go does: viper.New(),
// SetConfigFile, SetConfigType("yaml"), Unmarshal into a
// mapstructure-tagged struct. Extended here with the storage engine's
// own knobs (page size, buffer pool capacity, data/WAL directories,
// flush interval, strict-2PL) in place of the teacher's app-name/server
// fields, which belonged to the SQL-server layer this module drops.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's top-level configuration.
type Config struct {
	Storage struct {
		DataDir  string `mapstructure:"data_dir"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	BufferPool struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer_pool"`

	WAL struct {
		Dir           string        `mapstructure:"dir"`
		BufferBytes   int           `mapstructure:"buffer_bytes"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
	} `mapstructure:"wal"`

	Lock struct {
		Strict2PL bool `mapstructure:"strict_2pl"`
	} `mapstructure:"lock"`
}

// Default returns the configuration a fresh engine starts with absent a
// config file, matching the constants assumed elsewhere in this module
// (4 KiB pages, a 200ms WAL flush interval).
func Default() *Config {
	cfg := &Config{}
	cfg.Storage.DataDir = "data"
	cfg.Storage.PageSize = 4096
	cfg.BufferPool.Capacity = 128
	cfg.WAL.Dir = "data/wal"
	cfg.WAL.BufferBytes = 64 * 1024
	cfg.WAL.FlushInterval = 200 * time.Millisecond
	return cfg
}

// Load reads path as YAML and unmarshals it over Default(), the way the
// teacher's LoadConfig does — a bare viper.New() with an explicit
// SetConfigFile/SetConfigType rather than Viper's env/flag binding,
// since this is a single-file engine config, not a layered CLI config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
