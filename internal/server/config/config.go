// Package config handles configuration for the server component:
// defaults, JSON file overlay, environment variables and command-line flags,
// followed by validation at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/modauth/internal/flagx"
)

// Config holds runtime settings for the modauth server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the HTTP API.
//   - DatabaseDSN: PostgreSQL DSN (pgx) or "sqlite:<path>". Required.
//   - SecretKey: HMAC secret for signing tokens (HS256). Required.
//   - AccessTokenValidityDuration: lifetime of every issued token.
//   - FrontendURLs: origins allowed by CORS.
//   - AdminToken: when set, module administration requires X-Admin-Token.
//   - BcryptCost: password hashing cost.
//   - RedisAddr / LoginMaxAttempts / LoginCooldownDuration: failed login limiter.
//   - KafkaBrokers / KafkaTopic: domain event publishing.
//   - OtelEndpoint: OTLP/HTTP trace collector URL.
//   - DBConnectAttempts / DBConnectRetryDelay: startup connection retries.
type Config struct {
	EndpointAddrHTTP            string        `env:"HTTP_ADDR"`
	DatabaseDSN                 string        `env:"DATABASE_URL"`
	SecretKey                   string        `env:"SECRET_KEY"`
	AccessTokenValidityDuration time.Duration `env:"ACCESS_TOKEN_TTL"`
	FrontendURLs                []string      `env:"FRONTEND_URLS" envSeparator:","`
	AdminToken                  string        `env:"ADMIN_TOKEN"`
	BcryptCost                  int           `env:"BCRYPT_COST"`
	RedisAddr                   string        `env:"REDIS_ADDR"`
	LoginMaxAttempts            int           `env:"LOGIN_MAX_ATTEMPTS"`
	LoginCooldownDuration       time.Duration `env:"LOGIN_COOLDOWN"`
	KafkaBrokers                []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic                  string        `env:"KAFKA_TOPIC"`
	OtelEndpoint                string        `env:"OTEL_ENDPOINT"`
	LogLevel                    string        `env:"LOG_LEVEL"`
	DBConnectAttempts           int           `env:"DB_CONNECT_ATTEMPTS"`
	DBConnectRetryDelay         time.Duration `env:"DB_CONNECT_RETRY_DELAY"`
}

// LoadDefaults populates Config with development defaults. Secret key and
// database DSN have no defaults and must be supplied.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8000"
	c.AccessTokenValidityDuration = 30 * time.Minute
	c.FrontendURLs = []string{"http://localhost:3000"}
	c.BcryptCost = bcrypt.DefaultCost
	c.LoginMaxAttempts = 5
	c.LoginCooldownDuration = 15 * time.Minute
	c.KafkaTopic = "modauth.events"
	c.LogLevel = "info"
	c.DBConnectAttempts = 5
	c.DBConnectRetryDelay = 5 * time.Second
}

// Validate fails when a required setting is missing or a value is unusable.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.EndpointAddrHTTP == "" {
		errs = append(errs, errors.New("HTTP address is required"))
	}
	if c.AccessTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("access token validity must be positive"))
	}
	if len(c.FrontendURLs) == 0 {
		errs = append(errs, errors.New("at least one frontend origin is required"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.RedisAddr != "" && (c.LoginMaxAttempts <= 0 || c.LoginCooldownDuration <= 0) {
		errs = append(errs, errors.New("login limiter needs positive max attempts and cooldown"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when brokers are set"))
	}
	if c.DBConnectAttempts <= 0 {
		errs = append(errs, errors.New("db connect attempts must be positive"))
	}

	return errors.Join(errs...)
}

// LoadConfig builds a Config from os.Args and the process environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], nil)
}

// Load applies defaults, then the JSON file named by -c/-config, then
// environment variables, then command-line flags, and validates the result.
// A nil environ means the process environment.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, flagx.ConfigFileFlag(args)); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
