// Package config loads runtime configuration: built-in defaults, an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/lodestone/internal/engine"
)

// Config is everything the store layer needs to come up.
type Config struct {
	// Backend selects the engine: auto, native, or wasm.
	Backend engine.Preference `yaml:"backend"`
	// DataDir is where database files live.
	DataDir string `yaml:"dataDir"`
	// SearchDBFile and MetaDBFile are file names under DataDir.
	SearchDBFile string `yaml:"searchDbFile"`
	MetaDBFile   string `yaml:"metaDbFile"`
	// VecPath optionally points at a directory holding the loadable
	// vector extension.
	VecPath string `yaml:"vecPath"`
}

func defaults() Config {
	return Config{
		Backend:      engine.PreferenceAuto,
		DataDir:      "./data",
		SearchDBFile: "search.db",
		MetaDBFile:   "meta.db",
	}
}

// Load builds the effective configuration. The YAML file named by
// LODESTONE_CONFIG is optional; environment variables win over it.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("LODESTONE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("LODESTONE_DB_BACKEND"); v != "" {
		cfg.Backend = engine.Preference(v)
	}
	if v := os.Getenv("LODESTONE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LODESTONE_SEARCH_DB"); v != "" {
		cfg.SearchDBFile = v
	}
	if v := os.Getenv("LODESTONE_META_DB"); v != "" {
		cfg.MetaDBFile = v
	}
	if v := os.Getenv("LODESTONE_VEC_PATH"); v != "" {
		cfg.VecPath = v
	}

	switch cfg.Backend {
	case engine.PreferenceAuto, engine.PreferenceNative, engine.PreferenceWASM:
	default:
		return Config{}, fmt.Errorf("config: unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

// SearchDBPath is the full path of the search database file.
func (c Config) SearchDBPath() string {
	return filepath.Join(c.DataDir, c.SearchDBFile)
}

// MetaDBPath is the full path of the metadata database file.
func (c Config) MetaDBPath() string {
	return filepath.Join(c.DataDir, c.MetaDBFile)
}
