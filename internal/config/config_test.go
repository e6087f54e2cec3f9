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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
webauthn:
  rp_id: example.com
  rp_display_name: Example
  rp_origins:
    - https://example.com
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MinimalWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "5m", cfg.WebAuthn.ChallengeTTL)
	assert.Equal(t, "none", cfg.Session.Type)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "memory", cfg.Storage.Challenges.Backend)
	assert.Equal(t, "memory", cfg.Storage.Credentials.Backend)
	assert.False(t, cfg.TLS.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoad_FullConfig(t *testing.T) {
	yaml := `
server:
  host: 0.0.0.0
  port: 9443
logging:
  level: debug
  format: text
webauthn:
  rp_id: example.com
  rp_display_name: Example
  rp_origins:
    - https://example.com
    - https://www.example.com
  challenge_ttl: 2m
  user_verification: required
  attestation: none
session:
  type: jwt
  secret: super-secret
  issuer: example.com
  expires_in: 30m
ratelimit:
  enabled: true
  requests_per_min: 30
  burst: 10
metrics:
  enabled: true
storage:
  challenges:
    backend: redis
    redis:
      addr: localhost:6379
      key_prefix: example:challenge
  credentials:
    backend: sqlite
    path: /var/lib/passkey/credentials.db
`
	cfg, err := Load(writeConfigFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"https://example.com", "https://www.example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, "required", cfg.WebAuthn.UserVerification)
	assert.Equal(t, "jwt", cfg.Session.Type)
	assert.Equal(t, 30*time.Minute, cfg.SessionExpiry())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMin)
	assert.Equal(t, "redis", cfg.Storage.Challenges.Backend)
	assert.Equal(t, "localhost:6379", cfg.Storage.Challenges.Redis.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Credentials.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "webauthn: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PASSKEY_HOST", "127.0.0.1")
	t.Setenv("PASSKEY_PORT", "9999")
	t.Setenv("PASSKEY_LOG_LEVEL", "warn")
	t.Setenv("PASSKEY_RP_ID", "override.example.com")
	t.Setenv("PASSKEY_RP_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PASSKEY_SESSION_SECRET", "env-secret")

	yaml := minimalYAML + `
session:
  type: jwt
  secret: file-secret
`
	cfg, err := Load(writeConfigFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "override.example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, "env-secret", cfg.Session.Secret)
}

func TestLoad_InvalidEnvPortIgnored(t *testing.T) {
	t.Setenv("PASSKEY_PORT", "not-a-port")

	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	t.Setenv("PASSKEY_PORT", "70000")
	cfg, err = Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.WebAuthn.RPID = "example.com"
		cfg.WebAuthn.RPOrigins = []string{"https://example.com"}
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.TLS.Enabled = true },
			wantErr: "cert_file is required",
		},
		{
			name: "tls without key",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.CertFile = "/etc/ssl/server.crt"
			},
			wantErr: "key_file is required",
		},
		{
			name:    "missing rp_id",
			mutate:  func(c *Config) { c.WebAuthn.RPID = "" },
			wantErr: "rp_id must be specified",
		},
		{
			name:    "missing origins",
			mutate:  func(c *Config) { c.WebAuthn.RPOrigins = nil },
			wantErr: "rp_origins must list at least one origin",
		},
		{
			name:    "bad challenge ttl",
			mutate:  func(c *Config) { c.WebAuthn.ChallengeTTL = "five minutes" },
			wantErr: "invalid webauthn challenge_ttl",
		},
		{
			name:    "jwt session without secret",
			mutate:  func(c *Config) { c.Session.Type = "jwt" },
			wantErr: "session secret is required",
		},
		{
			name: "jwt session bad expiry",
			mutate: func(c *Config) {
				c.Session.Type = "jwt"
				c.Session.Secret = "s"
				c.Session.ExpiresIn = "soon"
			},
			wantErr: "invalid session expires_in",
		},
		{
			name:    "unknown session type",
			mutate:  func(c *Config) { c.Session.Type = "cookie" },
			wantErr: "invalid session type",
		},
		{
			name:    "redis backend without addr",
			mutate:  func(c *Config) { c.Storage.Challenges.Backend = "redis" },
			wantErr: "redis addr is required",
		},
		{
			name:    "unknown challenge backend",
			mutate:  func(c *Config) { c.Storage.Challenges.Backend = "etcd" },
			wantErr: "invalid challenge backend",
		},
		{
			name:    "sqlite backend without path",
			mutate:  func(c *Config) { c.Storage.Credentials.Backend = "sqlite" },
			wantErr: "sqlite path is required",
		},
		{
			name:    "unknown credential backend",
			mutate:  func(c *Config) { c.Storage.Credentials.Backend = "postgres" },
			wantErr: "invalid credential backend",
		},
		{
			name: "rate limit without rate",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerMin = -5
			},
			wantErr: "requests_per_min must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPasskeyConfig(t *testing.T) {
	cfg := &Config{}
	cfg.WebAuthn.RPID = "example.com"
	cfg.WebAuthn.RPDisplayName = "Example"
	cfg.WebAuthn.RPOrigins = []string{"https://example.com"}
	cfg.WebAuthn.ChallengeTTL = "90s"
	cfg.WebAuthn.UserVerification = "required"

	pk, err := cfg.PasskeyConfig()
	require.NoError(t, err)
	assert.Equal(t, "example.com", pk.RPID)
	assert.Equal(t, 90*time.Second, pk.ChallengeTTL)
	assert.Equal(t, "required", pk.UserVerification)

	cfg.WebAuthn.ChallengeTTL = "bogus"
	_, err = cfg.PasskeyConfig()
	assert.Error(t, err)
}

func TestSessionExpiry_FallsBackToHour(t *testing.T) {
	cfg := &Config{}
	cfg.Session.ExpiresIn = "garbage"
	assert.Equal(t, time.Hour, cfg.SessionExpiry())
}
