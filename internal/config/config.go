package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// MinBufferSize is the smallest transfer buffer. Installs identify a CIA
// from the first block alone and a retail CIA keeps its title id at 0x2C1C.
const MinBufferSize = 16 * 1024

// Config holds all application configuration
type Config struct {
	Root            string        `mapstructure:"root"`             // host directory emulating the console
	BufferSize      int           `mapstructure:"buffer_size"`      // shared transfer buffer
	ListingCapacity int           `mapstructure:"listing_capacity"` // rows per listing store
	FrameInterval   time.Duration `mapstructure:"frame_interval"`
	UserAgent       string        `mapstructure:"user_agent"`
	HTTP            HTTPConfig    `mapstructure:"http"`
	S3              S3Config      `mapstructure:"s3"`
	Console         ConsoleConfig `mapstructure:"console"`
	Logging         LoggingConfig `mapstructure:"logging"`
}

// HTTPConfig holds the URL transport settings
type HTTPConfig struct {
	Retries      int           `mapstructure:"retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
}

// S3Config holds the remote archive settings
type S3Config struct {
	Profile    string `mapstructure:"profile"`
	Bucket     string `mapstructure:"bucket"`
	Identities string `mapstructure:"identities"`
	Secrets    string `mapstructure:"secrets"`
	Compress   bool   `mapstructure:"compress"`
	Encrypt    bool   `mapstructure:"encrypt"`
}

// ConsoleConfig describes the emulated console
type ConsoleConfig struct {
	New bool `mapstructure:"new"` // console generation: true for the newer revision
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Root:            defaultRoot(),
		BufferSize:      128 * 1024,
		ListingCapacity: 1024,
		FrameInterval:   time.Second / 30,
		UserAgent:       "ctrmgr/1.0",
		HTTP: HTTPConfig{
			Retries:      3,
			Timeout:      30 * time.Second,
			MaxRedirects: 10,
		},
		S3: S3Config{
			Profile:    "default",
			Identities: "default",
			Secrets:    "default",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultRoot returns the default console root for the current OS
func defaultRoot() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "ctrmgr", "console")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "ctrmgr", "console")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "ctrmgr")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "ctrmgr")
	}
}

// Load reads configuration from file and environment. An empty path searches
// the default locations; a missing file there is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CTRMGR")
	v.AutomaticEnv()
	for _, key := range []string{"root", "buffer_size", "listing_capacity", "user_agent", "logging.level", "s3.bucket", "s3.profile"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values a job cannot run without.
func (c *Config) Validate() error {
	if c.BufferSize < MinBufferSize {
		return fmt.Errorf("buffer_size must be at least %d, got %d", MinBufferSize, c.BufferSize)
	}
	if c.ListingCapacity <= 0 {
		return fmt.Errorf("listing_capacity must be positive, got %d", c.ListingCapacity)
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = time.Second / 30
	}
	return nil
}
