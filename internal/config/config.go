// Package config loads and validates aggregator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Pipeline modes.
const (
	ModeFailFast   = "fail_fast"
	ModeBestEffort = "best_effort"
)

// Fallback backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// MaxConcurrency caps the fetch fan-out at one goroutine per source.
const MaxConcurrency = 8

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PipelineConfig governs the fetch fan-out.
type PipelineConfig struct {
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
}

// HTTPConfig configures outbound request timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// RateLimitConfig configures the per-host token buckets.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// SourcesConfig holds the endpoint and parameters of every upstream source.
type SourcesConfig struct {
	Randommer RandommerConfig `mapstructure:"randommer"`
	Identity  EndpointConfig  `mapstructure:"identity"`
	Phone     PhoneConfig     `mapstructure:"phone"`
	IBAN      IBANConfig      `mapstructure:"iban"`
	Card      CardConfig      `mapstructure:"card"`
	Name      NameConfig      `mapstructure:"name"`
	Pet       PetConfig       `mapstructure:"pet"`
	Quote     EndpointConfig  `mapstructure:"quote"`
	Joke      JokeConfig      `mapstructure:"joke"`
}

// RandommerConfig carries the credential shared by the randommer.io sources.
type RandommerConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// EndpointConfig is a source with no parameters.
type EndpointConfig struct {
	URL string `mapstructure:"url"`
}

// PhoneConfig parameterizes the phone source.
type PhoneConfig struct {
	URL         string `mapstructure:"url"`
	CountryCode string `mapstructure:"country_code"`
	Quantity    int    `mapstructure:"quantity"`
}

// IBANConfig parameterizes the IBAN source. CountryCode is appended to URL as
// a path segment.
type IBANConfig struct {
	URL         string `mapstructure:"url"`
	CountryCode string `mapstructure:"country_code"`
}

// CardConfig parameterizes the payment card source.
type CardConfig struct {
	URL  string `mapstructure:"url"`
	Type string `mapstructure:"type"`
}

// NameConfig parameterizes the first name source.
type NameConfig struct {
	URL      string `mapstructure:"url"`
	NameType string `mapstructure:"name_type"`
	Quantity int    `mapstructure:"quantity"`
}

// PetConfig parameterizes the pet name form post.
type PetConfig struct {
	URL    string `mapstructure:"url"`
	Animal string `mapstructure:"animal"`
	Number int    `mapstructure:"number"`
}

// JokeConfig parameterizes the joke source. Categories are appended to URL
// as a comma-joined path segment.
type JokeConfig struct {
	URL            string   `mapstructure:"url"`
	Categories     []string `mapstructure:"categories"`
	BlacklistFlags []string `mapstructure:"blacklist_flags"`
	Type           string   `mapstructure:"type"`
}

// DeliveryConfig configures the ingestion endpoint.
type DeliveryConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FallbackConfig selects where undeliverable aggregates are written.
type FallbackConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Filename  string `mapstructure:"filename"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DatabaseConfig controls access to the run metadata database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// TelemetryConfig names the service for tracing resources.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// ProjectID enables Cloud Trace export when set.
	ProjectID string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGGREGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("pipeline.mode", ModeFailFast)
	v.SetDefault("pipeline.concurrency", MaxConcurrency)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.user_agent", "profile-aggregator/0.1")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_rps", 5)
	v.SetDefault("rate_limit.default_burst", 4)

	v.SetDefault("sources.randommer.api_key", "")
	v.SetDefault("sources.identity.url", "https://randomuser.me/api/")
	v.SetDefault("sources.phone.url", "https://randommer.io/api/Phone/Generate")
	v.SetDefault("sources.phone.country_code", "FR")
	v.SetDefault("sources.phone.quantity", 1)
	v.SetDefault("sources.iban.url", "https://randommer.io/api/Finance/Iban")
	v.SetDefault("sources.iban.country_code", "FR")
	v.SetDefault("sources.card.url", "https://randommer.io/api/Card")
	v.SetDefault("sources.card.type", "visa")
	v.SetDefault("sources.name.url", "https://randommer.io/api/Name")
	v.SetDefault("sources.name.name_type", "firstname")
	v.SetDefault("sources.name.quantity", 1)
	v.SetDefault("sources.pet.url", "https://randommer.io/pet-names")
	v.SetDefault("sources.pet.animal", "Dog")
	v.SetDefault("sources.pet.number", 1)
	v.SetDefault("sources.quote.url", "https://zenquotes.io/api/random")
	v.SetDefault("sources.joke.url", "https://v2.jokeapi.dev/joke")
	v.SetDefault("sources.joke.categories", []string{"Programming", "Miscellaneous", "Pun"})
	v.SetDefault("sources.joke.blacklist_flags",
		[]string{"nsfw", "religious", "political", "racist", "sexist", "explicit"})
	v.SetDefault("sources.joke.type", "single")

	v.SetDefault("delivery.url", "http://localhost:3000/api/aggregated/ingest")
	v.SetDefault("delivery.timeout_seconds", 15)
	v.SetDefault("fallback.backend", BackendLocal)
	v.SetDefault("fallback.dir", ".")
	v.SetDefault("fallback.filename", "user_profile.json")
	v.SetDefault("fallback.gcs_bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "aggregation_runs")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("telemetry.service_name", "profile-aggregator")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.APIKey == "" {
		return fmt.Errorf("server.auth.api_key must be set when auth is enabled")
	}
	if c.Pipeline.Mode != ModeFailFast && c.Pipeline.Mode != ModeBestEffort {
		return fmt.Errorf("pipeline.mode must be %q or %q, got %q", ModeFailFast, ModeBestEffort, c.Pipeline.Mode)
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > MaxConcurrency {
		return fmt.Errorf("pipeline.concurrency must be between 1 and %d", MaxConcurrency)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Delivery.URL == "" {
		return fmt.Errorf("delivery.url must be set")
	}
	switch c.Fallback.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Fallback.GCSBucket == "" {
			return fmt.Errorf("fallback.gcs_bucket must be set when backend is gcs")
		}
	default:
		return fmt.Errorf("fallback.backend must be local or gcs, got %q", c.Fallback.Backend)
	}
	if c.Fallback.Filename == "" {
		return fmt.Errorf("fallback.filename must be set")
	}
	return nil
}

// RequestTimeout is the per-attempt budget for outbound source calls.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DeliveryTimeout is the budget for the single delivery POST.
func (c Config) DeliveryTimeout() time.Duration {
	if c.Delivery.TimeoutSeconds <= 0 {
		return c.RequestTimeout()
	}
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
