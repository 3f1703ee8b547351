package main

import (
	"fmt"
	"runtime"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds the merged settings: defaults, then the YAML file given
// with --config, then command line flags.
type Config struct {
	Input    string   `koanf:"input"`
	Files    []string `koanf:"file"`
	Output   string   `koanf:"output"`
	Type     string   `koanf:"type"`
	Force    bool     `koanf:"force"`
	Stdout   bool     `koanf:"stdout"`
	NoTag    bool     `koanf:"no-tag"`
	Workers  int      `koanf:"workers"`
	Quiet    bool     `koanf:"quiet"`
	LogLevel string   `koanf:"log-level"`
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"output":    "./",
		"workers":   runtime.NumCPU(),
		"log-level": "info",
	}
}

func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultConfig(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed loading defaults: %w", err)
	}

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed parsing config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &cfg, nil
}
