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

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port     string `mapstructure:"port"`
		Env      string `mapstructure:"env"`
		BaseURL  string `mapstructure:"baseURL"` // Публичный адрес сайта, от него строятся success/cancel/return URL
		LogLevel string `mapstructure:"logLevel"`
	} `mapstructure:"app"`
	Database struct {
		DSN    string `mapstructure:"dsn"`
		Driver string `mapstructure:"driver"` // sqlx | gorm
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers      []string `mapstructure:"brokers"`
		PaymentTopic string   `mapstructure:"paymentTopic"` // топик событий payment.recorded
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey           string        `mapstructure:"apiKey"`
		WebhookSecret    string        `mapstructure:"webhookSecret"`
		Currency         string        `mapstructure:"currency"`
		ProductName      string        `mapstructure:"productName"`
		SuccessPath      string        `mapstructure:"successPath"`
		CancelPath       string        `mapstructure:"cancelPath"`
		PortalReturnPath string        `mapstructure:"portalReturnPath"`
		WebhookTolerance time.Duration `mapstructure:"webhookTolerance"`
		RetryMaxElapsed  time.Duration `mapstructure:"retryMaxElapsed"`
	} `mapstructure:"stripe"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
}

// SuccessURL адрес возврата после успешной оплаты.
// {CHECKOUT_SESSION_ID} подставляет Stripe.
func (c *Config) SuccessURL() string {
	return c.absoluteURL(c.Stripe.SuccessPath)
}

// CancelURL адрес возврата при отмене оплаты.
func (c *Config) CancelURL() string {
	return c.absoluteURL(c.Stripe.CancelPath)
}

// PortalReturnURL адрес возврата из billing portal.
func (c *Config) PortalReturnURL() string {
	return c.absoluteURL(c.Stripe.PortalReturnPath)
}

func (c *Config) absoluteURL(path string) string {
	return strings.TrimRight(c.App.BaseURL, "/") + path
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Database.Driver != "sqlx" && c.Database.Driver != "gorm" {
		errs = append(errs, fmt.Errorf("database.driver must be sqlx or gorm, got %q", c.Database.Driver))
	}
	if c.Stripe.APIKey == "" {
		errs = append(errs, errors.New("stripe.apiKey is required"))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe.webhookSecret is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("app.baseURL is required"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.baseURL", "http://localhost:3000")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("database.driver", "sqlx")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.paymentTopic", "payment.recorded")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("stripe.productName", "Membership")
	v.SetDefault("stripe.successPath", "/payment/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("stripe.cancelPath", "/payment/cancel")
	v.SetDefault("stripe.portalReturnPath", "/profile")
	v.SetDefault("stripe.webhookTolerance", 5*time.Minute)
	v.SetDefault("stripe.retryMaxElapsed", 20*time.Second)
}

// LoadConfig загружает конфигурацию из .env (если есть), config.yml и переменных окружения.
// Переменные окружения имеют префикс BILLING_, точка заменяется на "_" (BILLING_STRIPE_APIKEY).
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env не обязателен
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	return &config, nil
}

// bindEnv регистрирует ключи без значения по умолчанию, иначе Unmarshal их не увидит.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.dsn",
		"redis.addr",
		"redis.password",
		"kafka.brokers",
		"stripe.apiKey",
		"stripe.webhookSecret",
		"auth.jwtSecret",
	} {
		_ = v.BindEnv(key)
	}
}
