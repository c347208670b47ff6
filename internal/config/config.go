package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string `mapstructure:"DEFAULT_TENANT"`
	AuthSecret    string `mapstructure:"AUTH_SECRET"`

	// Queue processor tunables.
	EventWorkers      int           `mapstructure:"EVENT_WORKERS"`
	EventPollInterval time.Duration `mapstructure:"EVENT_POLL_INTERVAL"`
	EventBatchSize    int           `mapstructure:"EVENT_BATCH_SIZE"`
	EventStaleAfter   time.Duration `mapstructure:"EVENT_STALE_AFTER"`
	EventBackoffBase  time.Duration `mapstructure:"EVENT_BACKOFF_BASE"`
	EventBackoffMax   time.Duration `mapstructure:"EVENT_BACKOFF_MAX"`

	// Webhook delivery tunables.
	WebhookTimeout    time.Duration `mapstructure:"WEBHOOK_TIMEOUT"`
	WebhookRetryCount int           `mapstructure:"WEBHOOK_RETRY_COUNT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("EVENT_WORKERS", 4)
	v.SetDefault("EVENT_POLL_INTERVAL", "2s")
	v.SetDefault("EVENT_BATCH_SIZE", 25)
	v.SetDefault("EVENT_STALE_AFTER", "5m")
	v.SetDefault("EVENT_BACKOFF_BASE", "1s")
	v.SetDefault("EVENT_BACKOFF_MAX", "5m")
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("WEBHOOK_RETRY_COUNT", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("EVENT_WORKERS")
	v.BindEnv("EVENT_POLL_INTERVAL")
	v.BindEnv("EVENT_BATCH_SIZE")
	v.BindEnv("EVENT_STALE_AFTER")
	v.BindEnv("EVENT_BACKOFF_BASE")
	v.BindEnv("EVENT_BACKOFF_MAX")
	v.BindEnv("WEBHOOK_TIMEOUT")
	v.BindEnv("WEBHOOK_RETRY_COUNT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Dev identity middleware is active — all requests get an")
		log.Println("WARNING: admin identity on the default tenant. Do NOT use this")
		log.Println("WARNING: configuration in production. Set ENV=production and")
		log.Println("WARNING: configure AUTH_SECRET.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In non-development
// modes AUTH_SECRET must be set so that real token verification is enforced,
// and the queue tunables must describe a usable processor.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when ENV is %q. "+
				"Refusing to start without token verification configuration", c.Env)
	}
	if c.EventWorkers < 1 {
		return fmt.Errorf("EVENT_WORKERS must be at least 1, got %d", c.EventWorkers)
	}
	if c.EventBatchSize < 1 {
		return fmt.Errorf("EVENT_BATCH_SIZE must be at least 1, got %d", c.EventBatchSize)
	}
	if c.EventPollInterval <= 0 {
		return fmt.Errorf("EVENT_POLL_INTERVAL must be positive, got %s", c.EventPollInterval)
	}
	if c.EventStaleAfter <= 0 {
		return fmt.Errorf("EVENT_STALE_AFTER must be positive, got %s", c.EventStaleAfter)
	}
	if c.EventBackoffBase <= 0 || c.EventBackoffMax < c.EventBackoffBase {
		return fmt.Errorf("EVENT_BACKOFF_BASE (%s) must be positive and no greater than EVENT_BACKOFF_MAX (%s)",
			c.EventBackoffBase, c.EventBackoffMax)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %s", c.WebhookTimeout)
	}
	if c.WebhookRetryCount < 1 {
		return fmt.Errorf("WEBHOOK_RETRY_COUNT must be at least 1, got %d", c.WebhookRetryCount)
	}
	return nil
}
