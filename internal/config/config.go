package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB     string       `yaml:"db" mapstructure:"db"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type EnrichConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"`
	Model         string        `yaml:"model" mapstructure:"model"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerMinute int           `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	FetchLinks    bool          `yaml:"fetch_links" mapstructure:"fetch_links"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DB:  filepath.Join(home, ".cvvault", "vault.db"),
		Log: LogConfig{Level: "info", Format: "text"},
		Enrich: EnrichConfig{
			Provider: "gemini",
			Timeout:  30 * time.Second,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads config.yaml from path (or the standard search locations when
// path is empty), then CVVAULT_* environment overrides.
func Load(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("db", def.DB)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("enrich.provider", def.Enrich.Provider)
	v.SetDefault("enrich.model", "")
	v.SetDefault("enrich.api_key", "")
	v.SetDefault("enrich.base_url", "")
	v.SetDefault("enrich.timeout", def.Enrich.Timeout)
	v.SetDefault("enrich.rate_per_minute", 0)
	v.SetDefault("enrich.fetch_links", false)
	v.SetDefault("server.addr", def.Server.Addr)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "cvvault"))
		}
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "cvvault"))
	}

	v.SetEnvPrefix("CVVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file; defaults and environment only
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Enrich.APIKey = expandEnv(cfg.Enrich.APIKey)
	cfg.Enrich.BaseURL = expandEnv(cfg.Enrich.BaseURL)
	if cfg.Enrich.APIKey == "" {
		cfg.Enrich.APIKey = credentialFromEnv(cfg.Enrich.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// credentialFromEnv falls back to the conventional per-vendor variables.
func credentialFromEnv(provider string) string {
	keys := []string{"API_KEY"}
	switch provider {
	case "anthropic":
		keys = append(keys, "ANTHROPIC_API_KEY")
	default:
		keys = append(keys, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("config: db path is required")
	}
	switch c.Enrich.Provider {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("config: enrich.provider %q is invalid (must be gemini or anthropic)", c.Enrich.Provider)
	}
	if c.Enrich.Timeout < 0 {
		return fmt.Errorf("config: enrich.timeout must not be negative")
	}
	if c.Enrich.RatePerMinute < 0 {
		return fmt.Errorf("config: enrich.rate_per_minute must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format %q is invalid (must be json or text)", c.Log.Format)
	}
	return nil
}
