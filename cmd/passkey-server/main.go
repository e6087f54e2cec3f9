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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianpress/go-passkey/internal/config"
	"github.com/meridianpress/go-passkey/internal/rest"
	"github.com/meridianpress/go-passkey/pkg/passkey"
	"github.com/meridianpress/go-passkey/pkg/passkey/redisstore"
	"github.com/meridianpress/go-passkey/pkg/passkey/sqlitestore"
	"github.com/meridianpress/go-passkey/pkg/ratelimit"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/passkey/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("Configuration loaded",
		"rp_id", cfg.WebAuthn.RPID,
		"challenges", cfg.Storage.Challenges.Backend,
		"credentials", cfg.Storage.Credentials.Backend,
		"port", cfg.Server.Port,
		"version", version)

	// The standalone server bootstraps registration sessions from its own
	// JWT issuer. Embedders with an existing session system use the
	// library packages directly instead.
	if cfg.Session.Type != "jwt" {
		slog.Error("Standalone server requires session type jwt")
		os.Exit(1)
	}

	srv, cleanup, err := buildServer(cfg)
	if err != nil {
		slog.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	shutdownCtx := setupSignalHandler()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	slog.Info("Passkey server started", "port", cfg.Server.Port)

	select {
	case <-shutdownCtx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errChan:
		slog.Error("Server error", slog.Any("error", err))
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownTimeout); err != nil {
		slog.Error("Error during server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Passkey server stopped")
}

// buildServer assembles stores, service, issuer, and REST server from the
// configuration. The returned cleanup closes store handles.
func buildServer(cfg *config.Config) (*rest.Server, func(), error) {
	passkeyCfg, err := cfg.PasskeyConfig()
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Challenge store
	var challenges passkey.ChallengeStore
	var redisCheck func(context.Context) error
	switch cfg.Storage.Challenges.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Challenges.Redis.Addr,
			Password: cfg.Storage.Challenges.Redis.Password,
			DB:       cfg.Storage.Challenges.Redis.DB,
		})
		cleanups = append(cleanups, func() { _ = client.Close() })

		var opts []redisstore.Option
		if prefix := cfg.Storage.Challenges.Redis.KeyPrefix; prefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(prefix))
		}
		store := redisstore.NewChallengeStore(client, opts...)
		challenges = store
		redisCheck = store.Ping
	default:
		challenges = passkey.NewMemoryChallengeStore()
	}

	// Credential store
	var credentials passkey.CredentialStore
	switch cfg.Storage.Credentials.Backend {
	case "sqlite":
		store, err := sqlitestore.Open(cfg.Storage.Credentials.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open credential store: %w", err)
		}
		cleanups = append(cleanups, func() { _ = store.Close() })
		credentials = store
	default:
		credentials = passkey.NewMemoryCredentialStore()
	}

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:          passkeyCfg,
		ChallengeStore:  challenges,
		CredentialStore: credentials,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create passkey service: %w", err)
	}

	issuer, err := passkey.NewJWTIssuer(&passkey.JWTIssuerConfig{
		Key:       []byte(cfg.Session.Secret),
		Issuer:    cfg.Session.Issuer,
		Audience:  cfg.Session.Audience,
		ExpiresIn: cfg.SessionExpiry(),
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create session issuer: %w", err)
	}

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load TLS config: %w", err)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})

	srv, err := rest.NewServer(&rest.Config{
		Port:           cfg.Server.Port,
		Service:        svc,
		Issuer:         issuer,
		Authorizer:     rest.NewJWTAuthorizer(issuer),
		Limiter:        limiter,
		TLSConfig:      tlsConfig,
		Logger:         slog.Default(),
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if redisCheck != nil {
		srv.SetReadinessCheck("redis", redisCheck)
	}

	return srv, cleanup, nil
}

// setupLogger configures the process-wide slog default from config.
func setupLogger(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
