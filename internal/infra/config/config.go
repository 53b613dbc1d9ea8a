// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Queue    QueueConfig    `yaml:"queue"`
	Loader   LoaderConfig   `yaml:"loader"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Session  SessionConfig  `yaml:"session"`
	Audio    AudioConfig    `yaml:"audio"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Messages MessagesConfig `yaml:"messages"`
}

// QueueConfig represents queue engine configuration.
type QueueConfig struct {
	DepletionThreshold int `yaml:"depletion_threshold" default:"2" validate:"omitempty,gte=1,lte=20"`
	CleanIntervalSec   int `yaml:"clean_interval_sec" default:"300" validate:"gte=0,lte=3600"`
	EventBuffer        int `yaml:"event_buffer" default:"32" validate:"omitempty,gte=1,lte=1024"`
}

// LoaderConfig represents track loader configuration.
type LoaderConfig struct {
	MaxAttempts     int `yaml:"max_attempts" default:"3" validate:"omitempty,gte=1,lte=10"`
	BaseDelayMs     int `yaml:"base_delay_ms" default:"500" validate:"omitempty,gte=10,lte=10000"`
	MaxDelayMs      int `yaml:"max_delay_ms" default:"8000" validate:"omitempty,gte=100,lte=60000"`
	ReadyTimeoutSec int `yaml:"ready_timeout_sec" default:"10" validate:"omitempty,gte=1,lte=120"`
}

// AdvisorConfig represents auto-queue advisor configuration.
type AdvisorConfig struct {
	Enabled   bool             `yaml:"enabled"`
	BatchSize int              `yaml:"batch_size" default:"5" validate:"omitempty,gte=1,lte=20"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single advisor provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig represents the track catalog API configuration.
type CatalogConfig struct {
	BaseURL    string  `yaml:"base_url" validate:"required,url"`
	TimeoutSec int     `yaml:"timeout_sec" default:"10" validate:"omitempty,gte=1,lte=60"`
	RateLimit  float64 `yaml:"rate_limit" default:"10" validate:"omitempty,gt=0,lte=100"`
}

// SessionConfig represents playback-state persistence configuration.
type SessionConfig struct {
	Store      string      `yaml:"store" default:"file" validate:"oneof=file redis"`
	Path       string      `yaml:"path" default:"tunedeck-state.json"`
	DebounceMs int         `yaml:"debounce_ms" default:"2000" validate:"omitempty,gte=100,lte=60000"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig represents the remote session store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
	Key      string `yaml:"key" default:"tunedeck:session"`
	TTLSec   int    `yaml:"ttl_sec" default:"0" validate:"gte=0"`
}

// AudioConfig represents local audio output configuration.
type AudioConfig struct {
	SampleRate   int `yaml:"sample_rate" default:"44100" validate:"omitempty,oneof=22050 44100 48000"`
	BufferSizeMs int `yaml:"buffer_size_ms" default:"100" validate:"omitempty,gte=10,lte=2000"`
}

// SpotifyConfig represents Spotify API configuration. Only required
// when a spotify advisor provider is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Configured reports whether credentials are present.
func (s SpotifyConfig) Configured() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// MessagesConfig represents user-facing messages shown when playback
// degrades.
type MessagesConfig struct {
	TrackUnavailable string `yaml:"track_unavailable" default:"This track can't be played right now."`
	ServiceDown      string `yaml:"service_down" default:"Playback service is unavailable, retrying soon."`
	TrackSkipped     string `yaml:"track_skipped" default:"Skipped an unplayable track."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Session.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Session.Redis.DB = db
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAdvisor(); err != nil {
		return err
	}

	return nil
}

// validateStore checks the session store selection is usable.
func (c *Config) validateStore() error {
	switch c.Session.Store {
	case "file":
		if c.Session.Path == "" {
			return errors.New("session.path is required for the file store")
		}
	case "redis":
		if c.Session.Redis.Addr == "" {
			return errors.New("session.redis.addr is required for the redis store")
		}
	}
	return nil
}

// validateAdvisor checks that an enabled advisor has providers and
// that a spotify provider has credentials to work with.
func (c *Config) validateAdvisor() error {
	if !c.Advisor.Enabled {
		return nil
	}
	if len(c.Advisor.Providers) == 0 {
		return errors.New("advisor.providers is required when the advisor is enabled")
	}
	for i, p := range c.Advisor.Providers {
		if p.Type == "spotify" && !c.Spotify.Configured() {
			return errors.Newf("spotify credentials are required for provider %d", i)
		}
	}
	return nil
}
