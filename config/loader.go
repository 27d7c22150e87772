package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with the precedence
// defaults -> YAML file -> environment variables.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PARLEY").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "PARLEY"}
}

// WithConfigPath sets the YAML file path. An empty path skips file loading.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from PREFIX_SECTION_FIELD variables.
func (l *Loader) applyEnv(cfg *Config) {
	l.envInt("SERVER_HTTP_PORT", &cfg.Server.HTTPPort)
	l.envInt("SERVER_METRICS_PORT", &cfg.Server.MetricsPort)
	l.envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	l.envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	l.envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)

	l.envString("DATABASE_DIALECT", &cfg.Database.Dialect)
	l.envString("DATABASE_DSN", &cfg.Database.DSN)
	l.envString("DATABASE_TRANSCRIPT_BACKEND", &cfg.Database.TranscriptBackend)
	l.envString("DATABASE_MONGO_URI", &cfg.Database.MongoURI)
	l.envString("DATABASE_MONGO_DATABASE", &cfg.Database.MongoDatabase)
	l.envString("DATABASE_MONGO_COLLECTION", &cfg.Database.MongoCollection)

	l.envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	l.envString("REDIS_ADDR", &cfg.Redis.Addr)
	l.envString("REDIS_PASSWORD", &cfg.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Redis.DB)

	l.envString("CONVERSATION_SUPERVISOR_PROVIDER", &cfg.Conversation.SupervisorProvider)
	l.envString("CONVERSATION_SUPERVISOR_MODEL", &cfg.Conversation.SupervisorModel)
	l.envInt("CONVERSATION_DEFAULT_MAX_TURNS", &cfg.Conversation.DefaultMaxTurns)
	l.envInt64("CONVERSATION_MAX_CONCURRENT_RUNS", &cfg.Conversation.MaxConcurrentRuns)
	l.envFloat("CONVERSATION_GENERATE_RATE", &cfg.Conversation.GenerateRate)

	for i := range cfg.Providers {
		l.envString(strings.ToUpper(cfg.Providers[i].Name)+"_API_KEY", &cfg.Providers[i].APIKey)
		l.envString(strings.ToUpper(cfg.Providers[i].Name)+"_BASE_URL", &cfg.Providers[i].BaseURL)
	}

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	l.envString("TELEMETRY_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	l.envFloat("TELEMETRY_SAMPLE_RATE", &cfg.Telemetry.SampleRate)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envInt64(key string, dst *int64) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Conversation.DefaultMaxTurns <= 0 {
		return fmt.Errorf("default_max_turns must be positive, got %d", c.Conversation.DefaultMaxTurns)
	}
	switch c.Database.Dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database dialect: %q", c.Database.Dialect)
	}
	switch c.Database.TranscriptBackend {
	case "", "sql":
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("transcript_backend is mongo but mongo_uri not set")
		}
	default:
		return fmt.Errorf("unsupported transcript backend: %q", c.Database.TranscriptBackend)
	}
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name must not be empty")
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry enabled but otlp_endpoint not set")
	}
	return nil
}
