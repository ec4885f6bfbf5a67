package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Graduation GraduationConfig `mapstructure:"graduation"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type MonitorConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	RapidChangeCount   int           `mapstructure:"rapid_change_count"`
	RapidChangeWindow  time.Duration `mapstructure:"rapid_change_window"`
	StuckAfter         time.Duration `mapstructure:"stuck_after"`
	OverrideAlertCount int           `mapstructure:"override_alert_count"`
}

// GraduationPlan advances one flag's rollout on a schedule.
type GraduationPlan struct {
	FlagKey   string  `mapstructure:"flag_key"`
	Target    float64 `mapstructure:"target"`
	Increment float64 `mapstructure:"increment"`
}

type GraduationConfig struct {
	Interval time.Duration    `mapstructure:"interval"`
	Plans    []GraduationPlan `mapstructure:"plans"`
}

type AuthConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("ROLLOUTGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("cache.ttl", time.Minute)
	viper.SetDefault("monitor.interval", time.Minute)
	viper.SetDefault("graduation.interval", time.Hour)
	viper.SetDefault("auth.access_token_ttl", 15*time.Minute)
	viper.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("ratelimit.requests_per_second", 20)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
