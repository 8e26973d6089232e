package verification

import (
	"fmt"
	"time"
)

type Config struct {
	SecretKey string        `mapstructure:"secret_key"`
	VerifyURL string        `mapstructure:"verify_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		Timeout:   5 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	if c.VerifyURL == "" {
		return fmt.Errorf("verify_url is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
