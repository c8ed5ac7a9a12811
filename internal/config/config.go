package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	Port            string        `mapstructure:"port"`
	DataDir         string        `mapstructure:"data_dir"`
	DBDriver        string        `mapstructure:"db_driver"`
	DBDSN           string        `mapstructure:"db_dsn"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	NormsDir        string        `mapstructure:"norms_dir"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
	EvaluatePerMin  int           `mapstructure:"evaluate_limit_per_min"`
	BatchWorkers    int           `mapstructure:"batch_workers"`
	LogLevel        string        `mapstructure:"log_level"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// EnvPrefix is prepended to every environment variable, e.g. CORROSION_PORT.
const EnvPrefix = "CORROSION"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_driver", "sqlite3")
	v.SetDefault("db_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("norms_dir", "")
	v.SetDefault("cache_ttl", 15*time.Minute)
	v.SetDefault("rate_limit_per_min", 120)
	v.SetDefault("evaluate_limit_per_min", 30)
	v.SetDefault("batch_workers", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("request_timeout", 30*time.Second)
}

// Load reads defaults, an optional config file and CORROSION_* environment
// variables, in increasing precedence. configFile may be empty, in which case
// corrosion.yaml or corrosion.json in the working directory is used if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("corrosion")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}

	switch c.DBDriver {
	case "sqlite3":
		if c.DataDir == "" && c.DBDSN == "" {
			return errors.New("sqlite3 needs data_dir or db_dsn")
		}
	case "pgx":
		if c.DBDSN == "" {
			return errors.New("db_dsn is required for the pgx driver")
		}
	default:
		return fmt.Errorf("invalid db_driver: %s. Must be 'sqlite3' or 'pgx'", c.DBDriver)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	if c.CacheTTL < 0 {
		return errors.New("cache_ttl must not be negative")
	}
	if c.RateLimitPerMin < 0 || c.EvaluatePerMin < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.BatchWorkers < 0 {
		return errors.New("batch_workers must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}

	return nil
}
