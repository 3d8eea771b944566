// Package config loads runtime settings from an optional .env file, an
// optional YAML file named by CONFIG_FILE and the process environment, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	LogLevel string `yaml:"log_level"`

	// StoreDriver is "postgres" or "memory".
	StoreDriver string `yaml:"store_driver"`
	DatabaseDSN string `yaml:"database_dsn"`

	Redis RedisConfig `yaml:"redis"`

	JWTSecret      string        `yaml:"jwt_secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	OTPTTL         time.Duration `yaml:"otp_ttl"`
	PendingTTL     time.Duration `yaml:"pending_change_ttl"`

	// TokenCache is "memory", "redis" or "none".
	TokenCache string `yaml:"token_cache"`

	// RedirectURL is the frontend base used in verification and reset links.
	RedirectURL string `yaml:"redirect_url"`

	// Notifier is "smtp", "kafka" or "log".
	Notifier string      `yaml:"notifier"`
	SMTP     SMTPConfig  `yaml:"smtp"`
	Kafka    KafkaConfig `yaml:"kafka"`

	// Uploader is "cloudinary", "s3" or "none".
	Uploader      string   `yaml:"uploader"`
	CloudinaryURL string   `yaml:"cloudinary_url"`
	S3            S3Config `yaml:"s3"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		GinMode:        "release",
		LogLevel:       "info",
		StoreDriver:    "postgres",
		JWTSecret:      "",
		AccessTokenTTL: 60 * time.Minute,
		OTPTTL:         24 * time.Hour,
		PendingTTL:     24 * time.Hour,
		TokenCache:     "memory",
		RedirectURL:    "http://localhost:3000",
		Notifier:       "log",
		SMTP:           SMTPConfig{Port: 587},
		Kafka:          KafkaConfig{Topic: "mail-events"},
		Uploader:       "none",
		S3:             S3Config{Region: "us-east-1"},
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.GinMode, "GIN_MODE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StoreDriver, "STORE_DRIVER")
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.TokenCache, "TOKEN_CACHE")
	setString(&cfg.RedirectURL, "REDIRECT_URL")
	setString(&cfg.Notifier, "NOTIFIER")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.User, "SMTP_USER")
	setString(&cfg.SMTP.Password, "SMTP_PASS")
	setString(&cfg.SMTP.From, "FROM_EMAIL")
	setString(&cfg.Kafka.Broker, "KAFKA_BROKER")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	setString(&cfg.Uploader, "UPLOADER")
	setString(&cfg.CloudinaryURL, "CLOUDINARY_URL")
	setString(&cfg.S3.Bucket, "S3_BUCKET")
	setString(&cfg.S3.Region, "S3_REGION")
	setString(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setString(&cfg.S3.PublicURL, "S3_PUBLIC_URL")

	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.SMTP.Port, "SMTP_PORT"); err != nil {
		return err
	}
	if err := setMinutes(&cfg.AccessTokenTTL, "ACCESS_TOKEN_EXPIRES_MIN"); err != nil {
		return err
	}
	if err := setMinutes(&cfg.OTPTTL, "OTP_TTL_MIN"); err != nil {
		return err
	}
	return setMinutes(&cfg.PendingTTL, "PENDING_CHANGE_TTL_MIN")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET required")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.TokenCache == "redis" && c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR required for the redis token cache")
	}
	if c.Notifier == "kafka" && c.Kafka.Broker == "" {
		return errors.New("KAFKA_BROKER required for the kafka notifier")
	}
	if c.AccessTokenTTL <= 0 || c.OTPTTL <= 0 || c.PendingTTL <= 0 {
		return errors.New("token and code lifetimes must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setMinutes(dst *time.Duration, key string) error {
	var mins int
	if err := setInt(&mins, key); err != nil {
		return err
	}
	if mins != 0 {
		*dst = time.Duration(mins) * time.Minute
	}
	return nil
}
