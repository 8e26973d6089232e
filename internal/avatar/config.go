package avatar

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	ProxyURL        string        `mapstructure:"proxy_url"`
	SocialURL       string        `mapstructure:"social_url"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxPageBytes    int64         `mapstructure:"max_page_bytes"`
}

func DefaultConfig() *Config {
	return &Config{
		ProxyURL:        "https://unavatar.io",
		SocialURL:       "https://x.com",
		ProbeTimeout:    10 * time.Second,
		MetadataTimeout: 5 * time.Second,
		UserAgent:       "Mozilla/5.0 (compatible; avatar-transformer/1.0)",
		MaxPageBytes:    2 << 20,
	}
}

func (c *Config) Validate() error {
	for name, raw := range map[string]string{"proxy_url": c.ProxyURL, "social_url": c.SocialURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("metadata_timeout must be positive")
	}
	if c.MaxPageBytes <= 0 {
		return fmt.Errorf("max_page_bytes must be positive")
	}
	return nil
}
