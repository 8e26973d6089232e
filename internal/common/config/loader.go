package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml, and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// TURNSTILE_SECRET_KEY overrides turnstile.secret_key, and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys makes secrets settable purely from the environment, even when
// the yaml omits them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"turnstile.secret_key",
		"transformation.api_key",
		"database.redis.address",
		"database.redis.password",
		"database.postgres.host",
		"database.postgres.user",
		"database.postgres.password",
		"camunda.broker_address",
	} {
		_ = v.BindEnv(key)
	}
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	candidates := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values. An unset
// variable expands to "" so the fallbacks in overrideEmptyConfig still apply.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the conventional variable names used by
// the hosted deployment.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Turnstile.SecretKey == "" {
		cfg.Turnstile.SecretKey = os.Getenv("TURNSTILE_SECRET_KEY")
	}
	if cfg.Transformation.APIKey == "" {
		cfg.Transformation.APIKey = os.Getenv("FASHN_API_KEY")
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = os.Getenv("REDIS_ADDRESS")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "avatar-transformer"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		// Long enough for a full poll budget.
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 120000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	if cfg.Avatar.ProxyURL == "" {
		cfg.Avatar.ProxyURL = "https://unavatar.io"
	}
	if cfg.Avatar.SocialURL == "" {
		cfg.Avatar.SocialURL = "https://x.com"
	}
	if cfg.Avatar.ProbeTimeout == 0 {
		cfg.Avatar.ProbeTimeout = 10000
	}
	if cfg.Avatar.MetadataTimeout == 0 {
		cfg.Avatar.MetadataTimeout = 5000
	}
	if cfg.Avatar.UserAgent == "" {
		cfg.Avatar.UserAgent = "Mozilla/5.0 (compatible; avatar-transformer/1.0)"
	}

	if cfg.Turnstile.VerifyURL == "" {
		cfg.Turnstile.VerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	}
	if cfg.Turnstile.Timeout == 0 {
		cfg.Turnstile.Timeout = 5000
	}

	if cfg.RateLimit.Prefix == "" {
		cfg.RateLimit.Prefix = "@fashn-ai/avatar"
	}
	if cfg.RateLimit.PerClient.Limit == 0 {
		cfg.RateLimit.PerClient.Limit = 5
	}
	if cfg.RateLimit.PerClient.Window == 0 {
		cfg.RateLimit.PerClient.Window = int((10 * time.Minute).Milliseconds())
	}
	if cfg.RateLimit.Daily.Limit == 0 {
		cfg.RateLimit.Daily.Limit = 100
	}
	if cfg.RateLimit.Daily.Window == 0 {
		cfg.RateLimit.Daily.Window = int((24 * time.Hour).Milliseconds())
	}

	if cfg.Transformation.BaseURL == "" {
		cfg.Transformation.BaseURL = "https://api.fashn.ai/v1"
	}
	if cfg.Transformation.ModelName == "" {
		cfg.Transformation.ModelName = "face-to-model"
	}
	if cfg.Transformation.AspectRatio == "" {
		cfg.Transformation.AspectRatio = "2:3"
	}
	if cfg.Transformation.Mode == "" {
		cfg.Transformation.Mode = ModeSync
	}
	if cfg.Transformation.Timeout == 0 {
		cfg.Transformation.Timeout = 90000
	}

	if cfg.Poller.MaxAttempts == 0 {
		cfg.Poller.MaxAttempts = 30
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 2000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 120000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Turnstile.SecretKey == "" {
		return fmt.Errorf("turnstile.secret_key is required")
	}
	if cfg.Transformation.APIKey == "" {
		return fmt.Errorf("transformation.api_key is required")
	}
	if cfg.Transformation.Mode != ModeSync && cfg.Transformation.Mode != ModeAsync {
		return fmt.Errorf("transformation.mode must be %q or %q, got %q", ModeSync, ModeAsync, cfg.Transformation.Mode)
	}
	if cfg.RateLimit.PerClient.Limit < 0 || cfg.RateLimit.Daily.Limit < 0 {
		return fmt.Errorf("rate_limit limits must not be negative")
	}
	if cfg.Poller.MaxAttempts < 1 {
		return fmt.Errorf("poller.max_attempts must be at least 1")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Postgres.Enabled() {
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       120000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
