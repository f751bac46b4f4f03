package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "DOCSTUDIO"
	defaultAPIBaseURL    = "http://localhost:8000"
	defaultDatabasePath  = "docstudio.db"
	defaultLogLevel      = "info"
	defaultHTTPTimeout   = 60 * time.Second
	defaultRateLimit     = 10.0
	defaultRateBurst     = 5
	defaultServerAddress = "127.0.0.1:5173"
	defaultOutputFormat  = "json"
)

// AppConfig captures runtime configuration for the docstudio client.
type AppConfig struct {
	APIBaseURL    string
	DatabasePath  string
	LogLevel      string
	HTTPTimeout   time.Duration
	RateLimit     float64
	RateBurst     int
	ServerAddress string
	OutputFormat  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("http.timeout", defaultHTTPTimeout)
	configViper.SetDefault("http.rate_limit", defaultRateLimit)
	configViper.SetDefault("http.rate_burst", defaultRateBurst)
	configViper.SetDefault("server.address", defaultServerAddress)
	configViper.SetDefault("output.format", defaultOutputFormat)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:    strings.TrimRight(strings.TrimSpace(configViper.GetString("api.base_url")), "/"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		HTTPTimeout:   configViper.GetDuration("http.timeout"),
		RateLimit:     configViper.GetFloat64("http.rate_limit"),
		RateBurst:     configViper.GetInt("http.rate_burst"),
		ServerAddress: configViper.GetString("server.address"),
		OutputFormat:  strings.ToLower(strings.TrimSpace(configViper.GetString("output.format"))),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute url: %q", c.APIBaseURL)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("http.rate_burst must be positive when http.rate_limit is set")
	}
	switch c.OutputFormat {
	case "json", "yaml":
	default:
		return fmt.Errorf("output.format must be json or yaml, got %q", c.OutputFormat)
	}
	return nil
}
