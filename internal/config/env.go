package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override lvjb.yaml.
const (
	EnvLogLevel        = "LVJB_LOG_LEVEL"
	EnvRuntimeBackend  = "LVJB_RUNTIME_BACKEND"
	EnvTestParallelism = "LVJB_TEST_PARALLELISM"
)

// ApplyEnv overlays environment overrides on c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	level, err := envInt(lookup, EnvLogLevel, c.LogLevel)
	if err != nil {
		return err
	}
	par, err := envInt(lookup, EnvTestParallelism, c.TestParallelism)
	if err != nil {
		return err
	}
	if level < 0 || par < 0 {
		return fmt.Errorf("%s and %s must be >= 0", EnvLogLevel, EnvTestParallelism)
	}
	c.LogLevel = level
	c.TestParallelism = par
	c.Runtime.Backend = envString(lookup, EnvRuntimeBackend, c.Runtime.Backend)
	return nil
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) (int, error) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}
