package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Server  ServerConfig `mapstructure:"server"`
	DB      DBConfig     `mapstructure:"db"`
	Redis   RedisConfig  `mapstructure:"redis"`
	Fanout  FanoutConfig `mapstructure:"fanout"`
	Feed    FeedConfig   `mapstructure:"feed"`
	Story   StoryConfig  `mapstructure:"story"`
	Reaper  ReaperConfig `mapstructure:"reaper"`
	JWT     JWTConfig    `mapstructure:"jwt"`
	Trace   TraceConfig  `mapstructure:"trace"`
	Sentry  SentryConfig `mapstructure:"sentry"`
	RateQPS float64      `mapstructure:"rate_qps"`
	Burst   int          `mapstructure:"rate_burst"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DBConfig struct {
	Driver string `mapstructure:"driver"` // postgres, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type FanoutConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	PageSize  int `mapstructure:"page_size"`
}

type FeedConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type StoryConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxPerOwner int64         `mapstructure:"max_per_owner"`
}

type ReaperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type TraceConfig struct {
	Endpoint string `mapstructure:"endpoint"` // OTLP http endpoint, empty disables
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Load 读取 config.yaml（可选）并叠加 STORYFEED_ 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=storyfeed port=5432 sslmode=disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.queue_size", 10000)
	v.SetDefault("fanout.page_size", 500)
	v.SetDefault("feed.ttl", 24*time.Hour)
	v.SetDefault("story.ttl", 24*time.Hour)
	v.SetDefault("story.max_per_owner", 30)
	v.SetDefault("reaper.interval", 10*time.Minute)
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("rate_qps", 50.0)
	v.SetDefault("rate_burst", 100)

	v.SetEnvPrefix("STORYFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
