package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Meta     MetaConfig     `mapstructure:"meta"`
	Drain    DrainConfig    `mapstructure:"drain"`
	Email    EmailConfig    `mapstructure:"email"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IngressRPS   float64       `mapstructure:"ingress_rps"`
	IngressBurst int           `mapstructure:"ingress_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// MetaConfig holds the system-level Graph API credential used only for
// auto-provisioning. SystemUserToken can be supplied via the environment
// (META_SYSTEM_USER_TOKEN) instead of the config file.
type MetaConfig struct {
	SystemUserToken string `mapstructure:"system_user_token" envconfig:"META_SYSTEM_USER_TOKEN"`
	VerifyToken     string `mapstructure:"verify_token" envconfig:"META_VERIFY_TOKEN"`
	APIVersion      string `mapstructure:"api_version" envconfig:"META_API_VERSION"`
	BaseURL         string `mapstructure:"base_url" envconfig:"META_BASE_URL"`
}

// DrainConfig controls the drain cycle: how many events one cycle claims,
// how long the exclusive lease lasts, and how often the worker polls.
type DrainConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	LockLease    time.Duration `mapstructure:"lock_lease"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	AlertTo  string `mapstructure:"alert_to"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("drain.batch_size", 100)
	viper.SetDefault("drain.lock_lease", 2*time.Minute)
	viper.SetDefault("drain.poll_interval", 15*time.Second)
	viper.SetDefault("meta.api_version", "v22.0")
	viper.SetDefault("meta.base_url", "https://graph.facebook.com")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env-only overrides so the credential never has to live in the
	// config file.
	var meta MetaConfig
	if err := envconfig.Process("", &meta); err == nil {
		if meta.SystemUserToken != "" {
			config.Meta.SystemUserToken = meta.SystemUserToken
		}
		if meta.VerifyToken != "" {
			config.Meta.VerifyToken = meta.VerifyToken
		}
		if meta.APIVersion != "" {
			config.Meta.APIVersion = meta.APIVersion
		}
		if meta.BaseURL != "" {
			config.Meta.BaseURL = meta.BaseURL
		}
	}

	return &config, nil
}
