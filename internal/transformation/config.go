package transformation

import "fmt"

const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

const (
	DefaultModelName   = "face-to-model"
	DefaultAspectRatio = "2:3"
)

type Config struct {
	ModelName   string `mapstructure:"model_name"`
	AspectRatio string `mapstructure:"aspect_ratio"`
	Mode        string `mapstructure:"mode"`
}

func DefaultConfig() *Config {
	return &Config{
		ModelName:   DefaultModelName,
		AspectRatio: DefaultAspectRatio,
		Mode:        ModeSync,
	}
}

func (c *Config) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	if c.Mode != ModeSync && c.Mode != ModeAsync {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeSync, ModeAsync, c.Mode)
	}
	return nil
}
