package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/plotup/plotup/internal/logger"
	"github.com/plotup/plotup/internal/plots"
	"github.com/plotup/plotup/internal/process"
)

// Config is the top-level TOML structure.
//
// Everything is optional: a zero-config run serves plots from the default
// directory on localhost:8001 and launches "langgraph dev" as the primary job.
type Config struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *logger.Config `toml:"log" mapstructure:"log"`
	Plots    PlotsConfig    `toml:"plots" mapstructure:"plots"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Aux      JobConfig      `toml:"aux" mapstructure:"aux"`
	Primary  JobConfig      `toml:"primary" mapstructure:"primary"`
}

type PlotsConfig struct {
	Dir           string        `toml:"dir" mapstructure:"dir"`
	MaxAge        time.Duration `toml:"max_age" mapstructure:"max_age"`
	SweepInterval time.Duration `toml:"sweep_interval" mapstructure:"sweep_interval"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type JobConfig struct {
	Name    string   `toml:"name" mapstructure:"name"`
	Command string   `toml:"command" mapstructure:"command"`
	WorkDir string   `toml:"workdir" mapstructure:"workdir"`
	Env     []string `toml:"env" mapstructure:"env"`
	PIDFile string   `toml:"pidfile" mapstructure:"pidfile"`
}

// Default returns the configuration matching the original wrapper script:
// plot server on localhost:8001 over the default plots directory and
// "langgraph dev" as the primary job.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Plots.Dir == "" {
		c.Plots.Dir = plots.DefaultDir
	}
	if c.Plots.MaxAge <= 0 {
		c.Plots.MaxAge = plots.DefaultMaxAge
	}
	if c.Plots.SweepInterval <= 0 {
		c.Plots.SweepInterval = plots.DefaultSweepInterval
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "localhost:8001"
	}
	if c.Aux.Name == "" {
		c.Aux.Name = "plot-server"
	}
	if c.Primary.Name == "" {
		c.Primary.Name = "langgraph"
	}
	if c.Primary.Command == "" {
		c.Primary.Command = "langgraph dev"
	}
}

// Load parses the TOML config at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

// JobSpec converts a JobConfig into a process.Spec, attaching the shared
// log configuration when the job has no destination of its own.
func (c *Config) JobSpec(j JobConfig) process.Spec {
	s := process.Spec{
		Name:    j.Name,
		Command: j.Command,
		WorkDir: j.WorkDir,
		Env:     j.Env,
		PIDFile: j.PIDFile,
	}
	if c.Log != nil {
		s.Log = *c.Log
	}
	return s
}

// MergedEnv merges env sources: OS env (when enabled) provides the base,
// env_files apply next, and the top-level env list overrides last. A nil
// result means "inherit the parent env".
func (c *Config) MergedEnv() ([]string, error) {
	if !c.UseOSEnv && len(c.EnvFiles) == 0 && len(c.Env) == 0 {
		return nil, nil
	}
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
