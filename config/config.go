package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Every field maps to a WAIVER_*
// environment variable (WAIVER_DATABASE_URL, WAIVER_PORT, ...).
type Config struct {
	Port           string `mapstructure:"port"`
	LogLevel       string `mapstructure:"log_level"`
	DatabaseURL    string `mapstructure:"database_url"`
	GatewayToken   string `mapstructure:"gateway_token"`
	AllowedOrigins string `mapstructure:"allowed_origins"`

	PlayerSyncURL      string        `mapstructure:"player_sync_url"`
	PlayerSyncToken    string        `mapstructure:"player_sync_token"`
	PlayerSyncInterval time.Duration `mapstructure:"player_sync_interval"`

	ArchiveEnabled  bool   `mapstructure:"archive_enabled"`
	ArchiveEndpoint string `mapstructure:"archive_endpoint"`
	ArchiveRegion   string `mapstructure:"archive_region"`
	ArchiveBucket   string `mapstructure:"archive_bucket"`
	ArchiveKeyID    string `mapstructure:"archive_key_id"`
	ArchiveSecret   string `mapstructure:"archive_secret"`
}

// Load reads configuration from the environment with sane defaults. Only the
// database URL and gateway token have no default; the caller validates them.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "5300")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("gateway_token", "")
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("player_sync_url", "")
	v.SetDefault("player_sync_token", "")
	v.SetDefault("player_sync_interval", 6*time.Hour)
	v.SetDefault("archive_enabled", false)
	v.SetDefault("archive_endpoint", "")
	v.SetDefault("archive_region", "auto")
	v.SetDefault("archive_bucket", "waiver-reports")
	v.SetDefault("archive_key_id", "")
	v.SetDefault("archive_secret", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
