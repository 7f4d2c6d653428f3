package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"InstaVisa"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"instavisa"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET" default:""`
	}

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD" default:""`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	Razorpay struct {
		KeyID     string        `envconfig:"RAZORPAY_KEY_ID"`
		KeySecret string        `envconfig:"RAZORPAY_KEY_SECRET"`
		Timeout   time.Duration `envconfig:"RAZORPAY_TIMEOUT" default:"15s"`
	}

	SMTP struct {
		Host     string `envconfig:"SMTP_HOST"`
		Port     int    `envconfig:"SMTP_PORT" default:"587"`
		User     string `envconfig:"SMTP_USER"`
		Password string `envconfig:"SMTP_PASSWORD"`
		From     string `envconfig:"SMTP_FROM" default:"InstaVisa <no-reply@instavisa.example>"`
	}

	Storage struct {
		Endpoint  string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
		AccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
		SecretKey string `envconfig:"STORAGE_SECRET_KEY"`
		Bucket    string `envconfig:"STORAGE_BUCKET" default:"instavisa-documents"`
		PublicURL string `envconfig:"STORAGE_PUBLIC_URL" default:"http://localhost:9000"`
		UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	}

	Console struct {
		AdminID string `envconfig:"CONSOLE_ADMIN_ID"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
