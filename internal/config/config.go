// Package config handles configuration loading from files, environment variables, and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
	"github.com/codebypatrickleung/cloudhop/internal/store"
)

const (
	defaultStorePath     = "./cloudhop.db"
	defaultSubjectPrefix = "cloudhop"
)

// Config holds all configuration for cloudhop.
type Config struct {
	StoreBackend         string
	StorePath            string
	PollInterval         time.Duration
	MaxWait              time.Duration
	RetryAttempts        int
	RetryDelay           time.Duration
	RateLimit            float64
	RateBurst            int
	NATSURL              string
	NATSSubjectPrefix    string
	MetricsAddr          string
	Debug                bool
	LogFile              string
	DiscoveryConcurrency int
}

// Load initializes configuration from file, environment variables, and flags.
func Load(configFile string) (*Config, error) {
	viper.SetDefault("store_backend", store.BackendSQLite)
	viper.SetDefault("store_path", defaultStorePath)
	viper.SetDefault("poll_interval", poll.DefaultInterval)
	viper.SetDefault("max_wait", poll.DefaultTimeout)
	viper.SetDefault("retry_attempts", cloud.DefaultRetryAttempts)
	viper.SetDefault("retry_delay", cloud.DefaultRetryDelay)
	viper.SetDefault("rate_limit", 10.0)
	viper.SetDefault("rate_burst", 5)
	viper.SetDefault("nats_subject_prefix", defaultSubjectPrefix)
	viper.SetDefault("discovery_concurrency", 4)

	viper.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		StoreBackend:         strings.ToLower(viper.GetString("store_backend")),
		StorePath:            viper.GetString("store_path"),
		PollInterval:         viper.GetDuration("poll_interval"),
		MaxWait:              viper.GetDuration("max_wait"),
		RetryAttempts:        viper.GetInt("retry_attempts"),
		RetryDelay:           viper.GetDuration("retry_delay"),
		RateLimit:            viper.GetFloat64("rate_limit"),
		RateBurst:            viper.GetInt("rate_burst"),
		NATSURL:              viper.GetString("nats_url"),
		NATSSubjectPrefix:    viper.GetString("nats_subject_prefix"),
		MetricsAddr:          viper.GetString("metrics_addr"),
		Debug:                viper.GetBool("debug"),
		LogFile:              viper.GetString("log_file"),
		DiscoveryConcurrency: viper.GetInt("discovery_concurrency"),
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case store.BackendMemory:
	case store.BackendSQLite, store.BackendBadger:
		if c.StorePath == "" {
			return fmt.Errorf("store_path is required for the %s store", c.StoreBackend)
		}
	default:
		return fmt.Errorf("store_backend must be one of memory, sqlite or badger, got %q", c.StoreBackend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxWait < c.PollInterval {
		return fmt.Errorf("max_wait (%s) must not be shorter than poll_interval (%s)", c.MaxWait, c.PollInterval)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.NATSURL != "" && c.NATSSubjectPrefix == "" {
		return fmt.Errorf("nats_subject_prefix is required when nats_url is set")
	}
	if c.DiscoveryConcurrency < 1 {
		return fmt.Errorf("discovery_concurrency must be at least 1")
	}
	return nil
}

// CallerConfig returns the provider-call pacing derived from c.
func (c *Config) CallerConfig() cloud.CallerConfig {
	return cloud.CallerConfig{
		RateLimit: c.RateLimit,
		Burst:     c.RateBurst,
		Attempts:  c.RetryAttempts,
		Delay:     c.RetryDelay,
	}
}

// PollConfig returns the replication polling settings derived from c.
func (c *Config) PollConfig() poll.Config {
	return poll.Config{Interval: c.PollInterval, Timeout: c.MaxWait}
}

// LoadConfig loads configuration using the global Viper instance.
func LoadConfig() (*Config, error) {
	return Load("")
}
