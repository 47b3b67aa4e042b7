package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from defaults, an
// optional mediavault.yaml next to the binary, and MEDIAVAULT_* environment
// variables, in increasing priority.
type Config struct {
	Port          int    `mapstructure:"port"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	StorageDir    string `mapstructure:"storage_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`

	MaxUploadBytes   int64    `mapstructure:"max_upload_bytes"`
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"`

	ResolverTimeout time.Duration `mapstructure:"resolver_timeout"`

	ConfirmationSecret string        `mapstructure:"confirmation_secret"`
	ConfirmationTTL    time.Duration `mapstructure:"confirmation_ttl"`

	StatsIncludeDeleted bool `mapstructure:"stats_include_deleted"`
}

// Load reads the configuration.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("sqlite_path", "./mediavault.db")
	v.SetDefault("storage_dir", "./files")
	v.SetDefault("public_base_url", "http://localhost:8080/files")
	v.SetDefault("max_upload_bytes", int64(10<<20))
	v.SetDefault("allowed_mime_types", []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/svg+xml",
		"application/pdf",
	})
	v.SetDefault("resolver_timeout", 5*time.Second)
	v.SetDefault("confirmation_ttl", 5*time.Minute)
	v.SetDefault("stats_include_deleted", true)

	v.SetConfigName("mediavault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mediavault")

	v.SetEnvPrefix("MEDIAVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ConfirmationSecret == "" {
		return nil, fmt.Errorf("confirmation_secret must be set (MEDIAVAULT_CONFIRMATION_SECRET)")
	}

	return cfg, nil
}

// AllowedMimeSet converts the configured mime list to a lookup set.
func (c *Config) AllowedMimeSet() map[string]bool {
	set := make(map[string]bool, len(c.AllowedMimeTypes))
	for _, m := range c.AllowedMimeTypes {
		set[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return set
}
