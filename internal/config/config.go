package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config carries everything the gateway needs at startup. Values load from
// an optional yaml file and are overridden by environment variables.
type Config struct {
	Port            string            `yaml:"port"`
	DatasourceType  string            `yaml:"datasource_type"`
	UpstreamURL     string            `yaml:"upstream_url"`
	TargetBuilder   string            `yaml:"target_builder"`
	BuilderLabels   map[string]string `yaml:"builder_labels"`
	ResolveBuilders bool              `yaml:"resolve_builder_tx"`

	FillsTTLMs         int64 `yaml:"cache_fills_ttl_ms"`
	ClearinghouseTTLMs int64 `yaml:"cache_clearinghouse_ttl_ms"`

	MaxStartCapital float64 `yaml:"max_start_capital"`

	UpstreamMaxWeight int   `yaml:"upstream_max_weight"`
	UpstreamWindowMs  int64 `yaml:"upstream_window_ms"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Port:               "8080",
		DatasourceType:     "hyperliquid",
		FillsTTLMs:         60_000,
		ClearinghouseTTLMs: 5_000,
		MaxStartCapital:    1_000_000,
		UpstreamMaxWeight:  1200,
		UpstreamWindowMs:   60_000,
		LogLevel:           "info",
		BuilderLabels:      map[string]string{},
	}
}

// Load reads the yaml file at path (skipped when path is empty or missing),
// then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.BuilderLabels == nil {
		cfg.BuilderLabels = map[string]string{}
	}
	lowered := make(map[string]string, len(cfg.BuilderLabels))
	for addr, label := range cfg.BuilderLabels {
		lowered[strings.ToLower(addr)] = label
	}
	cfg.BuilderLabels = lowered
	cfg.TargetBuilder = strings.ToLower(strings.TrimSpace(cfg.TargetBuilder))

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DatasourceType = getEnv("DATASOURCE_TYPE", c.DatasourceType)
	c.UpstreamURL = getEnv("HYPERLIQUID_API_URL", c.UpstreamURL)
	c.TargetBuilder = getEnv("TARGET_BUILDER", c.TargetBuilder)
	c.ResolveBuilders = getEnvBool("RESOLVE_BUILDER_TX", c.ResolveBuilders)
	c.FillsTTLMs = getEnvInt64("CACHE_FILLS_TTL_MS", c.FillsTTLMs)
	c.ClearinghouseTTLMs = getEnvInt64("CACHE_CLEARINGHOUSE_TTL_MS", c.ClearinghouseTTLMs)
	c.MaxStartCapital = getEnvFloat("MAX_START_CAPITAL", c.MaxStartCapital)
	c.UpstreamMaxWeight = int(getEnvInt64("UPSTREAM_MAX_WEIGHT", int64(c.UpstreamMaxWeight)))
	c.UpstreamWindowMs = getEnvInt64("UPSTREAM_WINDOW_MS", c.UpstreamWindowMs)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Debug reports whether verbose logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}
