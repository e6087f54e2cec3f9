// Copyright (c) 2026 Meridian Press Digital
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@meridianpress.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianpress/go-passkey/pkg/passkey"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings. WebAuthn requires a secure
// origin, so in any deployment without a terminating proxy TLS should
// be enabled here.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // TLS1.2, TLS1.3
}

// WebAuthnConfig controls relying party identity and ceremony policy
type WebAuthnConfig struct {
	RPID             string   `yaml:"rp_id"`
	RPDisplayName    string   `yaml:"rp_display_name"`
	RPOrigins        []string `yaml:"rp_origins"`
	ChallengeTTL     string   `yaml:"challenge_ttl"`     // Go duration, default 5m
	UserVerification string   `yaml:"user_verification"` // required, preferred, discouraged
	Attestation      string   `yaml:"attestation"`       // none, indirect, direct
	ResidentKey      string   `yaml:"resident_key"`      // required, preferred, discouraged
	Debug            bool     `yaml:"debug"`
}

// SessionConfig controls the token minted after a successful ceremony
type SessionConfig struct {
	Type      string   `yaml:"type"` // jwt, none
	Secret    string   `yaml:"secret"`
	Issuer    string   `yaml:"issuer"`
	Audience  []string `yaml:"audience"`
	ExpiresIn string   `yaml:"expires_in"` // Go duration, default 1h
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the challenge and credential backends
type StorageConfig struct {
	Challenges  ChallengeStorageConfig  `yaml:"challenges"`
	Credentials CredentialStorageConfig `yaml:"credentials"`
}

// ChallengeStorageConfig selects where pending challenges live
type ChallengeStorageConfig struct {
	Backend string      `yaml:"backend"` // memory, redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CredentialStorageConfig selects where registered credentials live
type CredentialStorageConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults fills in defaults for unset fields
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.WebAuthn.ChallengeTTL == "" {
		c.WebAuthn.ChallengeTTL = "5m"
	}
	if c.Session.Type == "" {
		c.Session.Type = "none"
	}
	if c.Session.ExpiresIn == "" {
		c.Session.ExpiresIn = "1h"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Storage.Challenges.Backend == "" {
		c.Storage.Challenges.Backend = "memory"
	}
	if c.Storage.Credentials.Backend == "" {
		c.Storage.Credentials.Backend = "memory"
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin == 0 {
		c.RateLimit.RequestsPerMin = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party
	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		cfg.WebAuthn.RPOrigins = splitAndTrim(origins)
	}

	// Session secret never belongs in a config file on disk
	if secret := os.Getenv("PASSKEY_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}

	// Storage
	if addr := os.Getenv("PASSKEY_REDIS_ADDR"); addr != "" {
		cfg.Storage.Challenges.Redis.Addr = addr
	}
	if password := os.Getenv("PASSKEY_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Challenges.Redis.Password = password
	}
	if path := os.Getenv("PASSKEY_SQLITE_PATH"); path != "" {
		cfg.Storage.Credentials.Path = path
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate relying party settings
	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn rp_id must be specified")
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		return fmt.Errorf("webauthn rp_origins must list at least one origin")
	}
	if _, err := time.ParseDuration(c.WebAuthn.ChallengeTTL); err != nil {
		return fmt.Errorf("invalid webauthn challenge_ttl: %w", err)
	}

	// Validate session settings
	switch c.Session.Type {
	case "none":
	case "jwt":
		if c.Session.Secret == "" {
			return fmt.Errorf("session secret is required for jwt sessions")
		}
		if _, err := time.ParseDuration(c.Session.ExpiresIn); err != nil {
			return fmt.Errorf("invalid session expires_in: %w", err)
		}
	default:
		return fmt.Errorf("invalid session type: %s (must be jwt or none)", c.Session.Type)
	}

	// Validate storage backends
	switch c.Storage.Challenges.Backend {
	case "memory":
	case "redis":
		if c.Storage.Challenges.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis challenge backend")
		}
	default:
		return fmt.Errorf("invalid challenge backend: %s (must be memory or redis)", c.Storage.Challenges.Backend)
	}

	switch c.Storage.Credentials.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Credentials.Path == "" {
			return fmt.Errorf("sqlite path is required for the sqlite credential backend")
		}
	default:
		return fmt.Errorf("invalid credential backend: %s (must be memory or sqlite)", c.Storage.Credentials.Backend)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	return nil
}

// PasskeyConfig converts the WebAuthn section into the ceremony core's
// configuration.
func (c *Config) PasskeyConfig() (*passkey.Config, error) {
	ttl, err := time.ParseDuration(c.WebAuthn.ChallengeTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid webauthn challenge_ttl: %w", err)
	}

	return &passkey.Config{
		RPID:                   c.WebAuthn.RPID,
		RPDisplayName:          c.WebAuthn.RPDisplayName,
		RPOrigins:              c.WebAuthn.RPOrigins,
		ChallengeTTL:           ttl,
		UserVerification:       c.WebAuthn.UserVerification,
		AttestationPreference:  c.WebAuthn.Attestation,
		ResidentKeyRequirement: c.WebAuthn.ResidentKey,
		Debug:                  c.WebAuthn.Debug,
	}, nil
}

// SessionExpiry parses the session token lifetime.
func (c *Config) SessionExpiry() time.Duration {
	d, err := time.ParseDuration(c.Session.ExpiresIn)
	if err != nil {
		return time.Hour
	}
	return d
}
