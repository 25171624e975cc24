package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gidas/internal/classify"
)

// Config models gidas.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret       string          `yaml:"jwt_secret"`
		TokenTTLMinutes int             `yaml:"token_ttl_minutes"`
		Users           map[string]User `yaml:"users"`
	} `yaml:"auth"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Categories map[string]CategoryRule `yaml:"categories"`
	Reporting  struct {
		SeasonalHistoryYears int `yaml:"seasonal_history_years"`
		ForecastMonthsAhead  int `yaml:"forecast_months_ahead"`
	} `yaml:"reporting"`
}

// User is a dashboard account. PasswordSHA256 is the lowercase hex
// SHA-256 digest of the password.
type User struct {
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	PasswordSHA256 string `yaml:"password_sha256"`
}

// CategoryRule binds a case category to its status rule variant.
type CategoryRule struct {
	Variant string `yaml:"variant"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with gidas config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth.jwt_secret is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must be positive")
	}
	for username, u := range c.Auth.Users {
		if username == "" {
			return fmt.Errorf("config.auth.users contains empty username")
		}
		if len(u.PasswordSHA256) != 64 {
			return fmt.Errorf("user %s: password_sha256 must be a 64-char hex digest", username)
		}
	}
	for name, rule := range c.Categories {
		if name == "" {
			return fmt.Errorf("config.categories contains empty category name")
		}
		if _, err := classify.ParseVariant(rule.Variant); err != nil {
			return fmt.Errorf("category %s: %w", name, err)
		}
	}
	if c.Reporting.SeasonalHistoryYears < 0 {
		return fmt.Errorf("config.reporting.seasonal_history_years must not be negative")
	}
	if c.Reporting.ForecastMonthsAhead < 0 || c.Reporting.ForecastMonthsAhead > 12 {
		return fmt.Errorf("config.reporting.forecast_months_ahead must be 0..12")
	}
	return nil
}

// RuleSet builds the classification rule table from the category
// bindings. Validate must have passed; unparsable variants are
// skipped here.
func (c *Config) RuleSet() *classify.RuleSet {
	variants := make(map[string]classify.Variant, len(c.Categories))
	for name, rule := range c.Categories {
		v, err := classify.ParseVariant(rule.Variant)
		if err != nil {
			continue
		}
		variants[name] = v
	}
	rs := classify.NewRuleSet(variants)
	return &rs
}

// TokenTTLMinutes returns the configured token lifetime with the
// default applied.
func (c *Config) TokenTTLMinutes() int {
	if c.Auth.TokenTTLMinutes > 0 {
		return c.Auth.TokenTTLMinutes
	}
	return 1440
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "gidas.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(jwtSecret string) string {
	return fmt.Sprintf(defaultTemplate, jwtSecret)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default(jwtSecret string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(jwtSecret))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8787
  base_path: /api

auth:
  jwt_secret: %s
  token_ttl_minutes: 1440
  users: {}

cors:
  allowed_origins:
    - http://localhost:3000

# Status rule variant per case category. Categories not listed here
# fall back to dual-flag.
categories:
  Separering:
    variant: dual-flag
  "Åben Land":
    variant: dual-flag
  Dispensationssag:
    variant: single-flag
  Nedsivningstilladelse:
    variant: single-flag

reporting:
  seasonal_history_years: 3
  forecast_months_ahead: 6
`
