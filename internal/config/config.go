package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/snaptrack/internal/pkg/errors"
	appvalidator "github.com/snaptrack/internal/pkg/validator"
)

type Config struct {
	Geoapify GeoapifyConfig
	Snap     SnapConfig
	Output   OutputConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Log      LogConfig
}

type GeoapifyConfig struct {
	BaseURL        string `validate:"required,url"`
	APIKey         string `validate:"required"`
	RequestTimeout time.Duration
}

type SnapConfig struct {
	Mode            string `validate:"required"`
	MaxBatchPoints  int    `validate:"min=2"`
	RateLimitPerMin int    `validate:"min=1"`
	MaxRetries      int    `validate:"min=0"`
	RetryBaseDelay  time.Duration
}

type OutputConfig struct {
	Suffix string `validate:"required"`
}

type CacheConfig struct {
	Enabled bool
	SnapTTL time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Zero is a legal retry count (no retries), so the default must not
	// be a zero-value backfill
	viper.SetDefault("SNAP_MAX_RETRIES", 3)

	// .env is optional: the key may come from the environment
	if _, err := os.Stat(".env"); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Geoapify: GeoapifyConfig{
			BaseURL:        viper.GetString("GEOAPIFY_API_URL"),
			APIKey:         viper.GetString("GEOAPIFY_API_KEY"),
			RequestTimeout: time.Duration(viper.GetInt("SNAP_REQUEST_TIMEOUT")) * time.Second,
		},
		Snap: SnapConfig{
			Mode:            viper.GetString("SNAP_MODE"),
			MaxBatchPoints:  viper.GetInt("SNAP_MAX_BATCH_POINTS"),
			RateLimitPerMin: viper.GetInt("SNAP_RATE_LIMIT_PER_MIN"),
			MaxRetries:      viper.GetInt("SNAP_MAX_RETRIES"),
			RetryBaseDelay:  time.Duration(viper.GetInt("SNAP_RETRY_BASE_DELAY")) * time.Second,
		},
		Output: OutputConfig{
			Suffix: viper.GetString("OUTPUT_SUFFIX"),
		},
		Cache: CacheConfig{
			Enabled: viper.GetBool("CACHE_ENABLED"),
			SnapTTL: time.Duration(viper.GetInt("CACHE_SNAP_TTL")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
	}

	// Set default values if not provided.
	// Defaults mirror the Geoapify free tier: 1000 waypoints per request,
	// 5 requests per second, 180s timeout.
	if cfg.Geoapify.BaseURL == "" {
		cfg.Geoapify.BaseURL = "https://api.geoapify.com/v1/mapmatching"
	}
	if cfg.Geoapify.RequestTimeout == 0 {
		cfg.Geoapify.RequestTimeout = 180 * time.Second
	}
	if cfg.Snap.Mode == "" {
		cfg.Snap.Mode = "drive"
	}
	if cfg.Snap.MaxBatchPoints == 0 {
		cfg.Snap.MaxBatchPoints = 1000
	}
	if cfg.Snap.RateLimitPerMin == 0 {
		cfg.Snap.RateLimitPerMin = 300
	}
	if cfg.Snap.RetryBaseDelay == 0 {
		cfg.Snap.RetryBaseDelay = 3 * time.Second
	}
	if cfg.Output.Suffix == "" {
		cfg.Output.Suffix = "_snapped"
	}
	if cfg.Cache.SnapTTL == 0 {
		cfg.Cache.SnapTTL = 24 * time.Hour
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет конфигурацию до первого сетевого вызова
func (c *Config) validate() error {
	if c.Geoapify.APIKey == "" {
		return apperrors.ErrMissingAPIKey
	}
	if err := appvalidator.Validate(c.Geoapify); err != nil {
		return apperrors.NewConfigError(appvalidator.Describe(err))
	}
	if err := appvalidator.Validate(c.Snap); err != nil {
		return apperrors.NewConfigError(appvalidator.Describe(err))
	}
	if err := appvalidator.Validate(c.Output); err != nil {
		return apperrors.NewConfigError(appvalidator.Describe(err))
	}
	return nil
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
