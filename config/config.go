// Package config loads client settings from defaults, an optional YAML file
// and RESILIENCE_ prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/gaborage/resilient-http/backoff"
	"github.com/gaborage/resilient-http/capacity"
	"github.com/gaborage/resilient-http/retry"
)

const (
	// DefaultFile is the YAML file Load reads when present
	DefaultFile = "resilience.yaml"
	// EnvPrefix marks the environment variables Load reads
	EnvPrefix = "RESILIENCE_"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. resilience.yaml in the working directory
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// YAML file is optional, log but don't fail
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		fmt.Printf("Warning: could not load %s: %v\n", path, err)
	}

	return finish(k)
}

// LoadBytes loads configuration from an in-memory YAML document layered
// over the defaults and under the environment.
func LoadBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	if err := loadEnv(k); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// RESILIENCE_RETRY_MAXATTEMPTS -> retry.maxattempts
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"log.level":  "info",
		"log.pretty": false,

		"retry.maxattempts":  retry.DefaultMaxAttempts,
		"retry.basedelay":    "0s",
		"retry.budget.rate":  0.0,
		"retry.budget.burst": 0,

		"backoff.factor":   backoff.DefaultBackoffFactor,
		"backoff.cooldown": backoff.DefaultCooldown.String(),
		"backoff.hostcap":  backoff.DefaultPerHostConnectionCap,

		"capacity.defaultmax":     capacity.DefaultMaxPerRoute,
		"capacity.maxtotal":       capacity.DefaultMaxTotal,
		"capacity.acquiretimeout": "0s",

		"observability.enabled":          false,
		"observability.service":          "resilient-http",
		"observability.environment":      "development",
		"observability.trace.enabled":    true,
		"observability.trace.endpoint":   "stdout",
		"observability.trace.protocol":   "http",
		"observability.trace.samplerate": 1.0,
		"observability.metrics.enabled":  true,
		"observability.metrics.endpoint": "stdout",
		"observability.metrics.protocol": "http",
		"observability.metrics.interval": "60s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
