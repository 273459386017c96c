package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Anshjain123/Code-N-Collab/runner"
)

// Config is the server configuration, read from YAML and then overridden
// by the environment.
type Config struct {
	Listen    string          `yaml:"listen"`
	Advertise AdvertiseConfig `yaml:"advertise"`
	Compile   CompileConfig   `yaml:"compile"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
}

// AdvertiseConfig controls the mDNS announcement.
type AdvertiseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

// CompileConfig bounds program runs.
type CompileConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxOutput int           `yaml:"max_output"`
	// Workers is how many redis queue consumers run in process. Zero
	// leaves the queue to separate worker processes.
	Workers int    `yaml:"workers"`
	Queue   string `yaml:"queue"`
}

// RedisConfig enables the redis job queue when Addr is set.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig enables postgres persistence when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

func DefaultConfig() Config {
	return Config{
		Listen: ":8081",
		Advertise: AdvertiseConfig{
			Service: "_codencollab._tcp",
		},
		Compile: CompileConfig{
			Timeout:   runner.DefaultTimeout,
			MaxOutput: runner.DefaultMaxOutput,
			Queue:     runner.DefaultQueueKey,
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. An empty path uses the
// defaults alone. Environment overrides are applied last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.Listen = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Compile.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("compile.timeout must be positive, got %s", c.Compile.Timeout))
	}
	if c.Compile.MaxOutput <= 0 {
		errs = append(errs, fmt.Errorf("compile.max_output must be positive, got %d", c.Compile.MaxOutput))
	}
	if c.Compile.Workers < 0 {
		errs = append(errs, fmt.Errorf("compile.workers must not be negative, got %d", c.Compile.Workers))
	}
	if c.Compile.Workers > 0 && c.Redis.Addr == "" {
		errs = append(errs, errors.New("compile.workers needs redis.addr"))
	}
	if c.Compile.Queue == "" {
		errs = append(errs, errors.New("compile.queue is empty"))
	}
	if c.Advertise.Enabled && c.Advertise.Service == "" {
		errs = append(errs, errors.New("advertise.service is empty"))
	}
	return errors.Join(errs...)
}
