// Package config читает настройки сервиса из окружения и необязательного .env файла.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения: STOREFRONT_HTTP_ADDR и т.д.
const EnvPrefix = "STOREFRONT"

// Драйверы хранилища данных.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Хранилища сессий.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config — полный набор настроек сервиса.
type Config struct {
	HTTPAddr       string `mapstructure:"http_addr"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	GRPCHealthAddr string `mapstructure:"grpc_health_addr"`

	Storage     string `mapstructure:"storage"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	SessionStore  string        `mapstructure:"session_store"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	// CookieSecure выставляет Secure у cookie сессии; включать за TLS.
	CookieSecure bool `mapstructure:"cookie_secure"`

	KafkaBrokers  string `mapstructure:"kafka_brokers"`
	KafkaTopic    string `mapstructure:"kafka_topic"`
	KafkaDLQTopic string `mapstructure:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts  int           `mapstructure:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `mapstructure:"outbox_retry_delay"`

	GuestUserID        int64 `mapstructure:"guest_user_id"`
	LoginRatePerMinute int   `mapstructure:"login_rate_per_minute"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"http_addr":             ":8080",
	"metrics_addr":          ":9090",
	"grpc_health_addr":      ":50051",
	"storage":               StorageMemory,
	"postgres_dsn":          "",
	"auto_migrate":          true,
	"session_store":         SessionStoreMemory,
	"redis_addr":            "localhost:6379",
	"redis_password":        "",
	"redis_db":              0,
	"session_secret":        "",
	"session_ttl":           24 * time.Hour,
	"cookie_secure":         false,
	"kafka_brokers":         "",
	"kafka_topic":           "storefront.order.events",
	"kafka_dlq_topic":       "storefront.order.dlq",
	"outbox_poll_interval":  time.Second,
	"outbox_batch_size":     100,
	"outbox_max_attempts":   3,
	"outbox_retry_delay":    100 * time.Millisecond,
	"guest_user_id":         0,
	"login_rate_per_minute": 30,
	"log_level":             "info",
	"log_format":            "text",
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load читает .env (если путь не пуст и файл существует), затем переменные окружения.
// Переменные окружения процесса имеют приоритет над .env.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := decode(newViper())
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	return cfg, nil
}

// Brokers возвращает список Kafka брокеров; пустой, если Kafka не настроена.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for redis session store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session_store %q", c.SessionStore))
	}
	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("session_secret must be at least 16 characters"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be positive"))
	}
	if c.GuestUserID < 0 {
		errs = append(errs, errors.New("guest_user_id must not be negative"))
	}
	if c.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("login_rate_per_minute must not be negative"))
	}

	return errors.Join(errs...)
}
