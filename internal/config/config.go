// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8001"`

	// Store
	MongoURL string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	DBName   string `env:"DB_NAME" envDefault:"gold_nightmare_bot"`

	// Cache: when RedisAddr is unreachable at startup the service falls back
	// to the in-process cache without erroring.
	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"5m"`
	PriceCacheTTL      time.Duration `env:"PRICE_CACHE_TTL" envDefault:"15m"`
	AnalysisCacheTTL   time.Duration `env:"ANALYSIS_CACHE_TTL" envDefault:"30m"`

	// LLM provider
	ClaudeAPIKey      string        `env:"CLAUDE_API_KEY"`
	ClaudeBaseURL     string        `env:"CLAUDE_BASE_URL" envDefault:"https://api.anthropic.com/v1/messages"`
	ClaudeModel       string        `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-20250514"`
	ClaudeMaxTokens   int           `env:"CLAUDE_MAX_TOKENS" envDefault:"4000"`
	ClaudeTemperature float64       `env:"CLAUDE_TEMPERATURE" envDefault:"0.7"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`

	// Gold price providers
	GoldAPIToken       string        `env:"GOLD_API_TOKEN"`
	MetalsAPIKey       string        `env:"METALS_API_KEY"`
	ForexAPIKey        string        `env:"FOREX_API_KEY"`
	PriceProvidersFile string        `env:"PRICE_PROVIDERS_FILE"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	ProviderConnectTO  time.Duration `env:"PROVIDER_CONNECT_TIMEOUT" envDefault:"10s"`

	// Prompting
	PromptLanguage string `env:"PROMPT_LANGUAGE" envDefault:"arabic"`
	BotSignature   string `env:"BOT_SIGNATURE" envDefault:"Gold Nightmare – عدي"`

	// Admin
	MasterUserID       string `env:"MASTER_USER_ID"`
	AdminUsername      string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword      string `env:"ADMIN_PASSWORD" envDefault:"GOLD_NIGHTMARE_205"`
	AdminTokenSecret   string `env:"ADMIN_TOKEN_SECRET" envDefault:"change-me-in-prod"`
	AdminTokenLifetime time.Duration `env:"ADMIN_TOKEN_LIFETIME" envDefault:"24h"`

	// HTTP edge
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxChartImageMB       int64         `env:"MAX_CHART_IMAGE_MB" envDefault:"8"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// Provider describes one upstream spot-price endpoint. Providers are tried
// in ascending Priority order.
type Provider struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Priority int               `yaml:"priority"`
	Parser   string            `yaml:"parser"`
}

// GoldProviders returns the configured provider table: entries from
// PriceProvidersFile when set, else the built-in table filtered to providers
// whose credentials are present.
func (c Config) GoldProviders() ([]Provider, error) {
	if c.PriceProvidersFile != "" {
		raw, err := os.ReadFile(c.PriceProvidersFile)
		if err != nil {
			return nil, fmt.Errorf("op=config.GoldProviders: %w", err)
		}
		var file struct {
			Providers []Provider `yaml:"providers"`
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("op=config.GoldProviders: %w", err)
		}
		return file.Providers, nil
	}

	var out []Provider
	if c.GoldAPIToken != "" {
		out = append(out, Provider{
			Name:     "goldapi",
			URL:      "https://www.goldapi.io/api/XAU/USD",
			Headers:  map[string]string{"x-access-token": c.GoldAPIToken, "Content-Type": "application/json"},
			Priority: 1,
			Parser:   "spot",
		})
	}
	if c.MetalsAPIKey != "" {
		out = append(out, Provider{
			Name:     "metals",
			URL:      "https://api.metals.live/v1/spot/gold",
			Headers:  map[string]string{"x-api-key": c.MetalsAPIKey},
			Priority: 2,
			Parser:   "rates",
		})
	}
	if c.ForexAPIKey != "" {
		out = append(out, Provider{
			Name:     "forex",
			URL:      "https://fcsapi.com/api-v3/forex/latest?symbol=XAU/USD",
			Headers:  map[string]string{"access_key": c.ForexAPIKey},
			Priority: 3,
			Parser:   "quotelist",
		})
	}
	return out, nil
}
