package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Server        ServerConfig
	Logs          LogConfig
	DB            PostgresConfig
	Redis         RedisConfig
	Auth          AuthConfig
	OpenAI        OpenAIConfig
	Stripe        StripeConfig
	RevenueCat    RevenueCatConfig
	OpenFoodFacts OpenFoodFactsConfig
	Usage         UsageConfig
	Queue         QueueConfig
	Metrics       MetricsConfig
}

type ServerConfig struct {
	Env             string        `env:"ENV"                     env-default:"local"`
	Host            string        `env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS"    env-default:"*"`
}

type LogConfig struct {
	Style string `env:"LOG_STYLE" env-default:"text"`
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

type PostgresConfig struct {
	DSN          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS"    env-default:"10"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" env-default:"30m"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE"            env-default:"false"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type AuthConfig struct {
	Issuer    string `env:"AUTH_ISSUER"`
	Audience  string `env:"AUTH_AUDIENCE"   env-default:"authenticated"`
	JWKSURL   string `env:"AUTH_JWKS_URL"`
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

type OpenAIConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	Model   string        `env:"OPENAI_MODEL"    env-default:"gpt-4o-mini"`
	BaseURL string        `env:"OPENAI_BASE_URL"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT"  env-default:"45s"`
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PriceID       string `env:"STRIPE_PRICE_ID"`
	AppURL        string `env:"APP_URL" env-default:"http://localhost:3000"`
}

type RevenueCatConfig struct {
	SecretKey     string        `env:"REVENUECAT_SECRET_KEY"`
	EntitlementID string        `env:"REVENUECAT_ENTITLEMENT_ID" env-default:"pro"`
	BaseURL       string        `env:"REVENUECAT_BASE_URL"       env-default:"https://api.revenuecat.com/v1"`
	Timeout       time.Duration `env:"REVENUECAT_TIMEOUT"        env-default:"10s"`
}

type OpenFoodFactsConfig struct {
	BaseURL   string        `env:"OFF_BASE_URL"   env-default:"https://world.openfoodfacts.org"`
	CacheTTL  time.Duration `env:"OFF_CACHE_TTL"  env-default:"1h"`
	CacheSize int           `env:"OFF_CACHE_SIZE" env-default:"2048"`
	Timeout   time.Duration `env:"OFF_TIMEOUT"    env-default:"10s"`
}

type UsageConfig struct {
	FreeDailyLimit int    `env:"FREE_DAILY_LIMIT"      env-default:"5"`
	DeviceIDMaxLen int    `env:"DEVICE_ID_MAX_LEN"     env-default:"128"`
	Store          string `env:"USAGE_STORE"           env-default:"memory"`
	Timezone       string `env:"USAGE_TIMEZONE"        env-default:"Local"`
	MemoryCapacity int    `env:"USAGE_MEMORY_CAPACITY" env-default:"100000"`
	PruneSchedule  string `env:"USAGE_PRUNE_SCHEDULE"  env-default:"5 0 * * *"`
}

type QueueConfig struct {
	WebhookQueueURL string `env:"WEBHOOK_QUEUE_URL"`
	Workers         int    `env:"WORKERS"`
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" env-default:"true"`
}

// LoadConfig reads the environment (plus .env) into a Config.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed with struct tags.
func (c *Config) Validate() error {
	if c.Usage.FreeDailyLimit <= 0 {
		return fmt.Errorf("FREE_DAILY_LIMIT must be positive, got %d", c.Usage.FreeDailyLimit)
	}
	if c.Usage.DeviceIDMaxLen <= 0 {
		return fmt.Errorf("DEVICE_ID_MAX_LEN must be positive, got %d", c.Usage.DeviceIDMaxLen)
	}
	switch c.Usage.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("USAGE_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("USAGE_STORE must be memory or redis, got %q", c.Usage.Store)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("USAGE_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves the timezone used for calendar-day keys.
func (c *Config) Location() (*time.Location, error) {
	if c.Usage.Timezone == "" || strings.EqualFold(c.Usage.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Usage.Timezone)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Origins splits the comma separated CORS origin list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// IsLocal reports whether the service runs in local development mode.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.Server.Env, "local")
}
