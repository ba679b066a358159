package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/modauth/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file. Durations
// use timex.Duration so both "30m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	FrontendURLs                []string       `json:"frontend_urls"`
	AdminToken                  string         `json:"admin_token"`
	BcryptCost                  int            `json:"bcrypt_cost"`
	RedisAddr                   string         `json:"redis_addr"`
	LoginMaxAttempts            int            `json:"login_max_attempts"`
	LoginCooldownDuration       timex.Duration `json:"login_cooldown_duration"`
	KafkaBrokers                []string       `json:"kafka_brokers"`
	KafkaTopic                  string         `json:"kafka_topic"`
	OtelEndpoint                string         `json:"otel_endpoint"`
	LogLevel                    string         `json:"log_level"`
}

// parseJSON overlays the values present in the file at path. An empty path
// is a no-op; fields missing from the file keep their current values.
func parseJSON(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.AdminToken, c.AdminToken)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.OtelEndpoint, c.OtelEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.LoginCooldownDuration.Duration > 0 {
		config.LoginCooldownDuration = c.LoginCooldownDuration.Duration
	}
	if c.BcryptCost > 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.LoginMaxAttempts > 0 {
		config.LoginMaxAttempts = c.LoginMaxAttempts
	}
	if len(c.FrontendURLs) > 0 {
		config.FrontendURLs = c.FrontendURLs
	}
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
