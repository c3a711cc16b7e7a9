// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package config loads bridge configuration from an optional YAML file
// layered under command-line flags. Defaults live in the struct so the
// bridge runs with no file at all.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full bridge configuration.
type Config struct {
	// ScriptsDir overrides the default Scripts directory derived from
	// the bridge binary's location. Empty means derive.
	ScriptsDir string `koanf:"scripts_dir" json:"scripts_dir,omitempty" jsonschema:"title=Scripts directory"`

	// Exclude lists glob patterns of script filenames to skip during
	// discovery, e.g. "wip_*.lua".
	Exclude []string `koanf:"exclude" json:"exclude,omitempty" jsonschema:"title=Discovery exclude patterns"`

	Log           Log           `koanf:"log" json:"log,omitempty"`
	Observability Observability `koanf:"observability" json:"observability,omitempty"`
}

// Log configures the slog handler.
type Log struct {
	// Format is "json" or "text".
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	// Level is "debug", "info", "warn" or "error".
	Level string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Observability configures the metrics and health HTTP server.
type Observability struct {
	Enabled bool   `koanf:"enabled" json:"enabled,omitempty"`
	Addr    string `koanf:"addr" json:"addr,omitempty" jsonschema:"title=Listen address,default=:9109"`
}

// Default returns the configuration used when no file or flags are
// given.
func Default() Config {
	return Config{
		Log: Log{
			Format: "text",
			Level:  "info",
		},
		Observability: Observability{
			Enabled: false,
			Addr:    ":9109",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped when path is empty), then any set flags on top.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.In("config").With("path", path).Hint("config file unreadable or invalid YAML").Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return cfg, oops.In("config").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.In("config").Hint("config does not match expected shape").Wrap(err)
	}
	return cfg, nil
}
