package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Marketplace MarketplaceConfig
	OAuth       OAuthConfig
	Scrape      ScrapeConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	Refresh     RefreshConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MarketplaceConfig struct {
	APIBase     string
	SiteID      string
	AuthBase    string
	ListingBase string
	Timeout     time.Duration
	UserAgent   string
}

type OAuthConfig struct {
	AppID        string
	AppSecret    string
	RefreshToken string
	RedirectURI  string
}

type ScrapeConfig struct {
	Default    bool
	Direct     bool
	Timeout    time.Duration
	BrowserURL string
	Token      string
	UserAgent  string
}

// Enabled reports whether any page fetcher can be built.
func (s ScrapeConfig) Enabled() bool {
	return s.BrowserURL != "" || s.Direct
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type RefreshConfig struct {
	Interval     time.Duration
	RateMin      time.Duration
	RateMax      time.Duration
	ProductsFile string
	RelayBatch   int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Marketplace: MarketplaceConfig{
			APIBase:     getEnvOrDefault("ML_API_BASE", "https://api.mercadolibre.com"),
			SiteID:      strings.ToUpper(getEnvOrDefault("ML_SITE_ID", "MLB")),
			AuthBase:    getEnvOrDefault("ML_AUTH_BASE", "https://auth.mercadolivre.com.br"),
			ListingBase: getEnvOrDefault("ML_LISTING_BASE", "https://produto.mercadolivre.com.br"),
			Timeout:     getDurationOrDefault("ML_API_TIMEOUT", 10*time.Second),
			UserAgent:   getEnvOrDefault("ML_USER_AGENT", "ImportCostControl/1.0 (server)"),
		},
		OAuth: OAuthConfig{
			AppID:        os.Getenv("ML_APP_ID"),
			AppSecret:    os.Getenv("ML_APP_SECRET"),
			RefreshToken: os.Getenv("ML_REFRESH_TOKEN"),
			RedirectURI:  os.Getenv("ML_REDIRECT_URI"),
		},
		Scrape: ScrapeConfig{
			Default:    getBoolOrDefault("SCRAPE_DEFAULT", false),
			Direct:     getBoolOrDefault("SCRAPE_DIRECT", false),
			Timeout:    getDurationOrDefault("SCRAPE_TIMEOUT", 20*time.Second),
			BrowserURL: os.Getenv("BROWSER_WS_URL"),
			Token:      os.Getenv("BROWSER_TOKEN"),
			UserAgent:  getEnvOrDefault("SCRAPE_USER_AGENT", defaultUserAgent),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:price_changes"),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "import_cost_control"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Refresh: RefreshConfig{
			Interval:     getDurationOrDefault("REFRESH_INTERVAL", 0),
			RateMin:      getDurationOrDefault("REFRESH_RATE_MIN", 1*time.Second),
			RateMax:      getDurationOrDefault("REFRESH_RATE_MAX", 3*time.Second),
			ProductsFile: getEnvOrDefault("PRODUCTS_FILE", "products.json"),
			RelayBatch:   getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}

	if c.Marketplace.SiteID == "" {
		return errors.New("ML_SITE_ID cannot be empty")
	}

	if c.Marketplace.Timeout <= 0 {
		return errors.New("ML_API_TIMEOUT must be positive")
	}

	if c.Scrape.Timeout <= 0 {
		return errors.New("SCRAPE_TIMEOUT must be positive")
	}

	if c.Refresh.RateMin > c.Refresh.RateMax {
		return fmt.Errorf("REFRESH_RATE_MIN cannot be greater than REFRESH_RATE_MAX")
	}

	if c.Refresh.Interval < 0 {
		return errors.New("REFRESH_INTERVAL cannot be negative")
	}

	if c.Database.Enabled() && c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (l LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
