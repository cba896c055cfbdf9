// Package config содержит логику чтения конфигурации сервиса artbid.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса artbid.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	LogLevel    string `env:"LOG_LEVEL"`

	AuthSecret     string `env:"AUTH_SECRET"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	AdminLogin     string `env:"ADMIN_LOGIN"`
	AdminPassword  string `env:"ADMIN_PASSWORD"`
	BcryptCost     int    `env:"BCRYPT_COST"`

	AllowSelfOutbid bool          `env:"ALLOW_SELF_OUTBID"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"`

	// NotifyBackends перечисляет через запятую: log, nats, rabbitmq, redis, webhook.
	NotifyBackends string `env:"NOTIFY_BACKENDS"`
	NATSURL        string `env:"NATS_URL"`
	RabbitMQURL    string `env:"RABBITMQ_URL"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB"`
	WebhookURL     string `env:"WEBHOOK_URL"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing session cookies")
	flag.BoolVar(&cfg.AllowSelfOutbid, "self-outbid", false, "allow the leading bidder to outbid themselves")
	flag.DurationVar(&cfg.SweepInterval, "sweep", time.Second, "auction lifecycle sweep interval")
	flag.StringVar(&cfg.NotifyBackends, "notify", "log", "comma separated notification backends")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", 10, "bcrypt cost for password hashes")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}

	return cfg, nil
}

// Backends возвращает список включённых систем уведомлений без повторов.
func (c *Config) Backends() []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range strings.Split(c.NotifyBackends, ",") {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

func loadDotEnv(path string) error {
	// уже заданные переменные окружения не перезаписываются
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
