// Package config provides the service configuration: defaults, YAML file
// loading, and environment variable overrides, in that precedence order.
package config

import "time"

// Config is the complete parley service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Conversation ConversationConfig `yaml:"conversation"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ProviderConfig configures one OpenAI-compatible model endpoint. The
// API key can also come from PARLEY_<NAME>_API_KEY.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Default bool   `yaml:"default"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// DatabaseConfig configures the relational store and the optional mongo
// transcript backend. With transcript_backend "mongo", chat history goes
// to the named collection while agents, pricing, and balances stay in
// the relational store.
type DatabaseConfig struct {
	Dialect string `yaml:"dialect"` // postgres, mysql, sqlite
	DSN     string `yaml:"dsn"`

	TranscriptBackend string `yaml:"transcript_backend"` // sql or mongo
	MongoURI          string `yaml:"mongo_uri"`
	MongoDatabase     string `yaml:"mongo_database"`
	MongoCollection   string `yaml:"mongo_collection"`
}

// RedisConfig configures the liveness flag store and pricing cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ConversationConfig configures run defaults and limits.
type ConversationConfig struct {
	SupervisorProvider string  `yaml:"supervisor_provider"`
	SupervisorModel    string  `yaml:"supervisor_model"`
	DefaultMaxTurns    int     `yaml:"default_max_turns"`
	MaxConcurrentRuns  int64   `yaml:"max_concurrent_runs"`
	GenerateRate       float64 `yaml:"generate_rate"` // model calls per second, 0 disables pacing
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming responses must not be cut off
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Dialect:           "sqlite",
			DSN:               "parley.db",
			TranscriptBackend: "sql",
			MongoDatabase:     "parley",
			MongoCollection:   "messages",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Conversation: ConversationConfig{
			SupervisorModel:   "gpt-4o-mini",
			DefaultMaxTurns:   10,
			MaxConcurrentRuns: 32,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "parley",
			SampleRate:  1.0,
		},
	}
}
