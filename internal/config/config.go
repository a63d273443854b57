// Package config loads callwatch settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ppiankov/callwatch/internal/dispatch"
	"github.com/ppiankov/callwatch/internal/intercept"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: CALLWATCH_INTERCEPTOR__POLICY_URL sets interceptor.policy_url.
const EnvPrefix = "CALLWATCH_"

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "callwatch.yaml"

// Config is the full set of client, interceptor and collector settings.
type Config struct {
	APIKey        string        `koanf:"api_key"`
	BaseURL       string        `koanf:"base_url"`
	AgentID       string        `koanf:"agent_id"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	BatchSize     int           `koanf:"batch_size"`
	Debug         bool          `koanf:"debug"`
	LogLevel      string        `koanf:"log_level"`

	Interceptor InterceptorConfig `koanf:"interceptor"`
	Collector   CollectorConfig   `koanf:"collector"`
}

// InterceptorConfig configures HTTP interception.
type InterceptorConfig struct {
	Enforcement     string   `koanf:"enforcement"`
	PolicyURL       string   `koanf:"policy_url"`
	ExcludePatterns []string `koanf:"exclude_patterns"`
	Debug           bool     `koanf:"debug"`
}

// CollectorConfig configures the development collector.
type CollectorConfig struct {
	Addr     string `koanf:"addr"`
	DB       string `koanf:"db"`
	Rules    string `koanf:"rules"`
	APIKey   string `koanf:"api_key"`
	AuditLog string `koanf:"audit_log"` // hash-chained decision log; empty disables
}

var defaults = map[string]any{
	"base_url":                dispatch.DefaultBaseURL,
	"flush_interval":          dispatch.DefaultFlushInterval.String(),
	"batch_size":              dispatch.DefaultBatchSize,
	"log_level":               "info",
	"interceptor.enforcement": string(intercept.EnforceLog),
	"collector.addr":          ":8080",
	"collector.db":            "callwatch.db",
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// then applies CALLWATCH_* environment overrides. An explicit path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults {
		k.Set(key, v)
	}

	filePath := path
	if filePath == "" {
		filePath = DefaultFile
	}
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Dispatch returns the client settings.
func (c *Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		AgentID:       c.AgentID,
		FlushInterval: c.FlushInterval,
		BatchSize:     c.BatchSize,
		Debug:         c.Debug,
	}
}

// Intercept returns the interceptor options. Logger, Evaluator and Warn are
// left for the caller.
func (c *Config) Intercept() intercept.Options {
	return intercept.Options{
		Enforcement:     intercept.Enforcement(c.Interceptor.Enforcement),
		PolicyURL:       c.Interceptor.PolicyURL,
		ExcludePatterns: c.Interceptor.ExcludePatterns,
		Debug:           c.Interceptor.Debug || c.Debug,
	}
}
