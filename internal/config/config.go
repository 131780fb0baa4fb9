// Package config loads process configuration from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,default=8080"`
	GinMode  string `env:"GIN_MODE,default=debug"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	StoreDriver         string        `env:"STORE_DRIVER,default=mongo"`
	MongoURL            string        `env:"MONGO_URL"`
	MongoPublicURL      string        `env:"MONGO_PUBLIC_URL"`
	MongoDatabase       string        `env:"MONGO_DATABASE,default=solestore"`
	MongoTransactions   bool          `env:"MONGO_TRANSACTIONS,default=false"`
	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT,default=10s"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTTTL      time.Duration `env:"JWT_TTL,default=168h"`
	AdminEmails []string      `env:"ADMIN_EMAILS"`
	CORSOrigins []string      `env:"CORS_ORIGINS,default=http://localhost:5173"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `env:"PAYMENT_CURRENCY,default=usd"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS"`
	KafkaOrderTopic string   `env:"KAFKA_ORDER_TOPIC,default=storefront.orders"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	MailFrom       string `env:"MAIL_FROM"`

	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT,default=5"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST,default=10"`
}

// Load reads .env (if present) and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MongoURI prefers MONGO_PUBLIC_URL, which hosted platforms set for
// connections from outside their private network.
func (c *Config) MongoURI() string {
	if c.MongoPublicURL != "" {
		return c.MongoPublicURL
	}
	return c.MongoURL
}

func (c *Config) Validate() error {
	var problems []string
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI() == "" {
			problems = append(problems, "MONGO_URL is required for the mongo store")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be %q or %q", StoreMongo, StoreMemory))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst <= 0 {
		problems = append(problems, "AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}
	if c.StripeWebhookSecret != "" && c.StripeSecretKey == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is set without STRIPE_SECRET_KEY")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AllowUnsignedWebhooks reports whether payment webhooks may be accepted
// without a signature. Only non-release modes without a webhook secret do.
func (c *Config) AllowUnsignedWebhooks() bool {
	return c.StripeWebhookSecret == "" && c.GinMode != "release"
}

func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c *Config) MailEnabled() bool { return c.SendGridAPIKey != "" && c.MailFrom != "" }
