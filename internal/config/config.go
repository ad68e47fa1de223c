// Package config loads and validates site API configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	DB         DBConfig         `mapstructure:"db"`
	Notes      NotesConfig      `mapstructure:"notes"`
	Paint      PaintConfig      `mapstructure:"paint"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	LastFM     LastFMConfig     `mapstructure:"lastfm"`
	Letterboxd LetterboxdConfig `mapstructure:"letterboxd"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds" validate:"gt=0"`
	RequestTimeoutSeconds    int `mapstructure:"request_timeout_seconds" validate:"gt=0"`
	ShutdownTimeoutSeconds   int `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// AuthConfig gates the mutating routes behind an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key" validate:"required_if=Enabled true"`
}

// CORSConfig feeds go-chi/cors.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" validate:"min=1"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds" validate:"gte=0"`
}

// RateLimitConfig throttles mutating routes per client IP.
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	WriteRequests int  `mapstructure:"write_requests" validate:"required_if=Enabled true,gte=0"`
	WindowSeconds int  `mapstructure:"window_seconds" validate:"required_if=Enabled true,gte=0"`
}

// HTTPConfig configures the outbound HTTP client and circuit breakers.
type HTTPConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	UserAgent          string `mapstructure:"user_agent"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes" validate:"gt=0"`
	BreakerFailures    uint32 `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerOpenSeconds int    `mapstructure:"breaker_open_seconds" validate:"gt=0"`
}

// DBConfig controls access to the notes database. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns" validate:"gte=0"`
	MinConns               int32  `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes" validate:"gte=0"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// NotesConfig shapes the sticky-note endpoints.
type NotesConfig struct {
	Table            string `mapstructure:"table" validate:"required"`
	MaxContentLength int    `mapstructure:"max_content_length" validate:"gt=0"`
	EventsTopic      string `mapstructure:"events_topic"`
}

// PaintConfig constrains uploaded paint images.
type PaintConfig struct {
	ObjectName     string `mapstructure:"object_name" validate:"required"`
	Width          int    `mapstructure:"width" validate:"gt=0"`
	Height         int    `mapstructure:"height" validate:"gt=0"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// StorageConfig selects the blob backend for the paint image.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=local memory gcs"`
	BaseDir   string `mapstructure:"base_dir" validate:"required_if=Backend local"`
	GCSBucket string `mapstructure:"gcs_bucket" validate:"required_if=Backend gcs"`
}

// PubSubConfig holds metadata for note event notifications. An empty topic keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LastFMConfig configures the recent-tracks proxy.
type LastFMConfig struct {
	APIKey          string `mapstructure:"api_key"`
	SharedSecret    string `mapstructure:"shared_secret"`
	DefaultUser     string `mapstructure:"default_user" validate:"required"`
	BaseURL         string `mapstructure:"base_url" validate:"required,url"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" validate:"gt=0"`
}

// LetterboxdConfig configures the film diary scraper.
type LetterboxdConfig struct {
	User                   string `mapstructure:"user" validate:"required"`
	BaseURL                string `mapstructure:"base_url" validate:"required,url"`
	CacheTTLSeconds        int    `mapstructure:"cache_ttl_seconds" validate:"gt=0"`
	PosterConcurrency      int    `mapstructure:"poster_concurrency" validate:"gt=0"`
	HeadlessFallback       bool   `mapstructure:"headless_fallback"`
	HeadlessTimeoutSeconds int    `mapstructure:"headless_timeout_seconds" validate:"gt=0"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

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
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age_seconds", 300)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.write_requests", 30)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "personal-site-api/1.0")
	v.SetDefault("http.max_body_bytes", 5*1024*1024)
	v.SetDefault("http.breaker_failures", 5)
	v.SetDefault("http.breaker_open_seconds", 30)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("notes.table", "notes")
	v.SetDefault("notes.max_content_length", 2000)
	v.SetDefault("notes.events_topic", "notes")
	v.SetDefault("paint.object_name", "paint.png")
	v.SetDefault("paint.width", 1920)
	v.SetDefault("paint.height", 1080)
	v.SetDefault("paint.max_upload_bytes", 16*1024*1024)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("lastfm.shared_secret", "")
	v.SetDefault("lastfm.default_user", "I4ROVI")
	v.SetDefault("lastfm.base_url", "http://ws.audioscrobbler.com")
	v.SetDefault("lastfm.cache_ttl_seconds", 5)
	v.SetDefault("letterboxd.user", "14rovi")
	v.SetDefault("letterboxd.base_url", "https://letterboxd.com")
	v.SetDefault("letterboxd.cache_ttl_seconds", 5*60)
	v.SetDefault("letterboxd.poster_concurrency", 8)
	v.SetDefault("letterboxd.headless_fallback", false)
	v.SetDefault("letterboxd.headless_timeout_seconds", 30)
	v.SetDefault("logging.development", false)
}

// bindLegacyEnv keeps the environment names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":          {"SITE_SERVER_PORT", "PORT"},
		"db.dsn":               {"SITE_DB_DSN", "DATABASE_URL"},
		"lastfm.api_key":       {"SITE_LASTFM_API_KEY", "LAST_FM_API_KEY"},
		"lastfm.shared_secret": {"SITE_LASTFM_SHARED_SECRET", "LAST_FM_SHARED_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DB.MaxConns > 0 && c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must be <= db.max_conns")
	}
	return nil
}

// RequestTimeout is the per-request budget enforced by the HTTP server.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// HTTPTimeout is the outbound request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// LastFMCacheTTL is how long a user's recent tracks are served from memory.
func (c Config) LastFMCacheTTL() time.Duration {
	return time.Duration(c.LastFM.CacheTTLSeconds) * time.Second
}

// LetterboxdCacheTTL is how long a film scrape is served from memory.
func (c Config) LetterboxdCacheTTL() time.Duration {
	return time.Duration(c.Letterboxd.CacheTTLSeconds) * time.Second
}
