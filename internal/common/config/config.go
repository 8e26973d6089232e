package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Server         ServerConfig            `mapstructure:"server"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Avatar         AvatarConfig            `mapstructure:"avatar"`
	Turnstile      TurnstileConfig         `mapstructure:"turnstile"`
	RateLimit      RateLimitConfig         `mapstructure:"rate_limit"`
	Transformation TransformationConfig    `mapstructure:"transformation"`
	Poller         PollerConfig            `mapstructure:"poller"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	Logging        LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig backs the optional transformation history. An empty Host
// disables it.
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether history persistence is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// --- Domain Configuration ---

// AvatarConfig controls profile image resolution.
type AvatarConfig struct {
	ProxyURL        string `mapstructure:"proxy_url"`
	SocialURL       string `mapstructure:"social_url"`
	ProbeTimeout    int    `mapstructure:"probe_timeout"`    // milliseconds
	MetadataTimeout int    `mapstructure:"metadata_timeout"` // milliseconds
	UserAgent       string `mapstructure:"user_agent"`
}

// TurnstileConfig holds bot verification settings.
type TurnstileConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	VerifyURL string `mapstructure:"verify_url"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// RateLimitConfig holds the two sliding windows guarding transformations.
type RateLimitConfig struct {
	Prefix    string       `mapstructure:"prefix"`
	PerClient WindowConfig `mapstructure:"per_client"`
	Daily     WindowConfig `mapstructure:"daily"`
}

type WindowConfig struct {
	Limit  int `mapstructure:"limit"`
	Window int `mapstructure:"window"` // milliseconds
}

// TransformationConfig targets the AI prediction provider.
type TransformationConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	ModelName   string `mapstructure:"model_name"`
	AspectRatio string `mapstructure:"aspect_ratio"`
	Mode        string `mapstructure:"mode"`    // sync | async
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

type PollerConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	Interval    int `mapstructure:"interval"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
