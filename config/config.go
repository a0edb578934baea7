package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Env      string         `yaml:"env" validate:"oneof=development production test"`
	LogLevel string         `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Server   ServerConfig   `yaml:"server"`
	Bot      BotConfig      `yaml:"bot"`
	Store    StoreConfig    `yaml:"store"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// WebhookBaseURL is the public URL Telegram reaches this server on.
	// Empty skips webhook registration.
	WebhookBaseURL string `yaml:"webhook_base_url" validate:"omitempty,url"`
	WebhookSecret  string `yaml:"webhook_secret" validate:"omitempty,alphanum"`
}

type BotConfig struct {
	Token       string  `yaml:"token" validate:"required"`
	APIEndpoint string  `yaml:"api_endpoint" validate:"required,contains=%s"`
	DefaultLang string  `yaml:"default_lang" validate:"oneof=en hi"`
	AdminIDs    []int64 `yaml:"admin_ids"`
}

type StoreConfig struct {
	Type     string         `yaml:"type" validate:"oneof=memory redis sqlite postgres"`
	Timeout  time.Duration  `yaml:"timeout"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type DeliveryConfig struct {
	// Timeout bounds one private delivery of a revealed secret.
	Timeout             time.Duration `yaml:"timeout"`
	ObserverTimeout     time.Duration `yaml:"observer_timeout"`
	ObserverConcurrency int           `yaml:"observer_concurrency" validate:"min=1"`
}

// env mirrors the variables the bot has always been configured with. Unset
// variables stay nil so they do not clobber file values.
type env struct {
	Env                 *string        `envconfig:"ENV"`
	LogLevel            *string        `envconfig:"LOG_LEVEL"`
	Host                *string        `envconfig:"HOST"`
	Port                *int           `envconfig:"PORT"`
	WebhookBaseURL      *string        `envconfig:"WEBHOOK_BASE_URL"`
	WebhookSecret       *string        `envconfig:"WEBHOOK_SECRET"`
	BotToken            *string        `envconfig:"BOT_TOKEN"`
	APIEndpoint         *string        `envconfig:"TELEGRAM_API_ENDPOINT"`
	DefaultLang         *string        `envconfig:"DEFAULT_LANG"`
	AdminIDs            *string        `envconfig:"ADMIN_IDS"`
	StoreType           *string        `envconfig:"STORE_TYPE"`
	StoreTimeout        *time.Duration `envconfig:"STORE_TIMEOUT"`
	RedisAddr           *string        `envconfig:"REDIS_ADDR"`
	RedisPassword       *string        `envconfig:"REDIS_PASSWORD"`
	RedisDB             *int           `envconfig:"REDIS_DB"`
	SQLitePath          *string        `envconfig:"SQLITE_PATH"`
	DatabaseURL         *string        `envconfig:"DATABASE_URL"`
	DeliveryTimeout     *time.Duration `envconfig:"DELIVERY_TIMEOUT"`
	ObserverTimeout     *time.Duration `envconfig:"OBSERVER_TIMEOUT"`
	ObserverConcurrency *int           `envconfig:"OBSERVER_CONCURRENCY"`
}

func Default() *Config {
	return &Config{
		Env:      "production",
		LogLevel: "info",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Bot: BotConfig{
			APIEndpoint: "https://api.telegram.org/bot%s/%s",
			DefaultLang: "en",
		},
		Store: StoreConfig{
			Type:    "memory",
			Timeout: 5 * time.Second,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			SQLite: SQLiteConfig{
				Path: "whispers.db",
			},
		},
		Delivery: DeliveryConfig{
			Timeout:             10 * time.Second,
			ObserverTimeout:     5 * time.Second,
			ObserverConcurrency: 4,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if any), then the environment. A .env file in the working directory is
// folded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	set(&c.Env, e.Env)
	set(&c.LogLevel, e.LogLevel)

	// Server
	set(&c.Server.Host, e.Host)
	set(&c.Server.Port, e.Port)
	set(&c.Server.WebhookBaseURL, e.WebhookBaseURL)
	set(&c.Server.WebhookSecret, e.WebhookSecret)

	set(&c.Bot.Token, e.BotToken)
	set(&c.Bot.APIEndpoint, e.APIEndpoint)
	set(&c.Bot.DefaultLang, e.DefaultLang)
	if e.AdminIDs != nil {
		ids, err := ParseIDs(*e.AdminIDs)
		if err != nil {
			return fmt.Errorf("ADMIN_IDS: %w", err)
		}
		c.Bot.AdminIDs = ids
	}

	set(&c.Store.Type, e.StoreType)
	set(&c.Store.Timeout, e.StoreTimeout)
	set(&c.Store.Redis.Addr, e.RedisAddr)
	set(&c.Store.Redis.Password, e.RedisPassword)
	set(&c.Store.Redis.DB, e.RedisDB)
	set(&c.Store.SQLite.Path, e.SQLitePath)
	set(&c.Store.Postgres.URL, e.DatabaseURL)

	set(&c.Delivery.Timeout, e.DeliveryTimeout)
	set(&c.Delivery.ObserverTimeout, e.ObserverTimeout)
	set(&c.Delivery.ObserverConcurrency, e.ObserverConcurrency)

	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ParseIDs reads a comma separated list of numeric Telegram user ids.
// Blank entries are skipped and duplicates dropped.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Store.Type {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("redis addr is required when store type is 'redis'")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return errors.New("sqlite path is required when store type is 'sqlite'")
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return errors.New("database url is required when store type is 'postgres'")
		}
	}

	if c.Store.Timeout <= 0 {
		return errors.New("store timeout must be positive")
	}

	if c.Delivery.Timeout <= 0 || c.Delivery.ObserverTimeout <= 0 {
		return errors.New("delivery timeouts must be positive")
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WebhookPath is the route Telegram posts updates to. A configured secret
// becomes a final path segment.
func (c *Config) WebhookPath() string {
	if c.Server.WebhookSecret == "" {
		return "/webhook"
	}
	return "/webhook/" + c.Server.WebhookSecret
}

// WebhookURL is empty when no public base URL is configured.
func (c *Config) WebhookURL() string {
	if c.Server.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.Server.WebhookBaseURL, "/") + c.WebhookPath()
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
