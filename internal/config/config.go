package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type AppConfig struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Store    string `yaml:"store"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type NotifyConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Notify   NotifyConfig   `yaml:"notify"`
}

func defaults() Config {
	return Config{
		App: AppConfig{
			Port:     "8080",
			Env:      "local",
			LogLevel: "info",
			Store:    StorePostgres,
		},
		Postgres: PostgresConfig{
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MigrationsPath:  "migrations",
			AutoMigrate:     true,
			TxTimeout:       5 * time.Second,
			LockTimeout:     2 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Notify: NotifyConfig{
			Workers:      2,
			QueueSize:    1000,
			MaxAttempts:  3,
			RetryBackoff: 2 * time.Second,
			PollInterval: 500 * time.Millisecond,
		},
	}
}

// NewConfig builds the configuration from, in increasing priority: built-in
// defaults, the YAML file named by CONFIG_FILE, a .env file and the process
// environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.Store, "STORE_DRIVER")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.User, "EMAIL_USER")
	setString(&cfg.SMTP.Password, "EMAIL_PASS")
	setString(&cfg.SMTP.From, "EMAIL_FROM")

	var errs []error
	errs = append(errs,
		setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"),
		setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"),
		setDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"),
		setBool(&cfg.Postgres.AutoMigrate, "DB_AUTO_MIGRATE"),
		setDuration(&cfg.Postgres.TxTimeout, "DB_TX_TIMEOUT"),
		setDuration(&cfg.Postgres.LockTimeout, "DB_LOCK_TIMEOUT"),
		setInt(&cfg.SMTP.Port, "SMTP_PORT"),
		setInt(&cfg.Notify.Workers, "NOTIFY_WORKERS"),
		setInt(&cfg.Notify.QueueSize, "NOTIFY_QUEUE_SIZE"),
		setInt(&cfg.Notify.MaxAttempts, "NOTIFY_MAX_ATTEMPTS"),
		setDuration(&cfg.Notify.RetryBackoff, "NOTIFY_RETRY_BACKOFF"),
		setDuration(&cfg.Notify.PollInterval, "NOTIFY_POLL_INTERVAL"),
	)
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	switch c.App.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.App.Store)
	}

	if err := c.SMTP.validate(); err != nil {
		return err
	}

	if c.App.Store == StoreMemory {
		return nil
	}

	required := []struct {
		name  string
		value string
	}{
		{"DB_HOST", c.Postgres.Host},
		{"DB_PORT", c.Postgres.Port},
		{"DB_USER", c.Postgres.User},
		{"DB_PASSWORD", c.Postgres.Password},
		{"DB_NAME", c.Postgres.DBName},
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	return nil
}

// validate only applies when SMTP_HOST is set; without it mail is logged.
// The envelope sender is EMAIL_FROM, or EMAIL_USER when no From is given,
// and whichever is used must be a real mailbox.
func (c SMTPConfig) validate() error {
	if c.Host == "" {
		return nil
	}

	sender, key := c.From, "EMAIL_FROM"
	if sender == "" {
		sender, key = c.User, "EMAIL_USER"
	}
	if sender == "" {
		return errors.New("EMAIL_FROM or EMAIL_USER is required when SMTP_HOST is set")
	}

	if _, err := mail.ParseAddress(sender); err != nil {
		return fmt.Errorf("%s must be an email address, got %q: %w", key, sender, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt32(dst *int32, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
