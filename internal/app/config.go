package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (TOPUP_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string   `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string   `usage:"PostgreSQL connection URL (TOPUP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper   string   `usage:"HMAC pepper for API key hashing (TOPUP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	PaymentMethods []string `usage:"Accepted payment methods; empty accepts any" flag:"payment-methods"`
	Catalog        CatalogConfig
	Notification   NotificationConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	Graceful       GracefulConfig
}

// CatalogConfig controls where the catalog snapshot comes from and how often
// it is reloaded.
type CatalogConfig struct {
	RefreshInterval time.Duration `default:"1m" usage:"Catalog reload interval; 0 disables reloading" flag:"catalog-refresh"`
	File            string        `default:"" usage:"Load the catalog from this JSON or .json.gz file instead of PostgreSQL" flag:"catalog-file"`
	MaxAge          time.Duration `default:"0" usage:"Readiness fails when the snapshot is older than this; 0 disables" flag:"catalog-max-age"`
}

// NotificationConfig controls retry of failed notifications.
type NotificationConfig struct {
	QueueSize   int           `default:"1024" usage:"Max notifications awaiting retry"`
	MaxAttempts int           `default:"5" usage:"Delivery attempts including the first"`
	Backoff     time.Duration `default:"500ms" usage:"Initial retry delay, doubled per attempt"`
}

// KafkaConfig enables publishing notifications to Kafka when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	Topic   string   `default:"topup.notifications" usage:"Notification topic" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-caller sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "TOPUP",
		Files:     []string{"config.yaml", "/etc/topup/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set TOPUP_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set TOPUP_API_KEY_PEPPER")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's TOPUP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
