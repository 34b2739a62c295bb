// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/airwave/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is the prefix environment-variable overrides must carry, e.g.
// AIRWAVE_DATABASE_PATH maps to Database.Path.
const envPrefix = "AIRWAVE_"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "./data/airwave.duckdb",
			Threads:                0, // 0 => runtime.NumCPU()
			MaxMemory:              "4GB",
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8090,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Scanner: ScannerConfig{
			MaxConcurrentFiles: 10,
			CommitInterval:     100,
			TouchBatchSize:     200,
			VectorBatchSize:    500,
			MissingChunkSize:   500,
			CancelPollFiles:    25,
			ExceptionsPath:     "normalizer_exceptions.yaml",
		},
		Threshold: ThresholdConfig{
			ArtistAuto:         0.92,
			ArtistReview:       0.80,
			TitleAuto:          0.90,
			TitleReview:        0.75,
			VectorStrong:       0.08,
			TitleVector:        0.85,
			TitleVectorDist:    0.20,
			WorkFuzzyMaxWorks:  500,
			WorkFuzzyThreshold: 0.85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Vector: VectorConfig{
			Dimensions:         384,
			RequestTimeout:     5 * time.Second,
			BreakerMaxRequests: 5,
			BreakerOpenTimeout: 30 * time.Second,
			IndexPath:          "./data/vector-index",
			SnapshotInterval:   10 * time.Minute,
		},
	}
}

// Load builds the final Config by layering, in order: built-in defaults,
// an optional YAML config file, then environment variable overrides.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := resolveConfigFilePath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Threshold.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid threshold configuration: %w", err)
	}

	return cfg, nil
}

// resolveConfigFilePath returns the first existing config file path,
// honoring CONFIG_PATH, or "" if none is found.
func resolveConfigFilePath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
