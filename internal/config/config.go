package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration. Every field maps to one env var, with
// an optional .env file in the working directory for local development.
type Config struct {
	// Server
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"` // development | production
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	// Storage
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	AMQPURL       string `mapstructure:"AMQP_URL"`

	// Venue
	VenueID              string `mapstructure:"VENUE_ID"`
	StatsCacheTTLSeconds int    `mapstructure:"STATS_CACHE_TTL_SECONDS"`

	// Auth
	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	AdminName             string `mapstructure:"ADMIN_NAME"`
	AdminPIN              string `mapstructure:"ADMIN_PIN"`

	PrometheusEnabled bool `mapstructure:"PROMETHEUS_ENABLED"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("VENUE_ID", "main-venue")
	v.SetDefault("STATS_CACHE_TTL_SECONDS", 30)
	// secrets have no defaults; startup refuses to run without them
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 720)
	v.SetDefault("ADMIN_NAME", "admin")
	v.SetDefault("ADMIN_PIN", "")
	v.SetDefault("PROMETHEUS_ENABLED", true)

	// .env is optional
	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.AdminName = strings.TrimSpace(cfg.AdminName)
	cfg.AdminPIN = strings.TrimSpace(cfg.AdminPIN)
	if cfg.StatsCacheTTLSeconds < 1 {
		cfg.StatsCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 720
	}
	if cfg.AdminName == "" {
		cfg.AdminName = "admin"
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
