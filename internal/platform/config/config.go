// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

The API server and the bulk reorder tool share the same struct; fields that a
binary does not need are simply ignored by it.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the story engine.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Empty disables the shared story cache tier.
	RedisURL     string `env:"REDIS_URL"`
	CacheRedisOn bool   `env:"CACHE_REDIS_ENABLED" envDefault:"false"`

	// JWTPubKeyPath verifies bearer tokens for ingestion and admin routes.
	JWTPubKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`

	// Story traversal
	StoryWindowSize int    `env:"STORY_WINDOW_SIZE" envDefault:"10"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE"  envDefault:"en"`

	// Default story cache
	CacheSize            int           `env:"CACHE_SIZE"             envDefault:"50"`
	CacheRefreshInterval time.Duration `env:"CACHE_REFRESH_INTERVAL" envDefault:"10m"`

	// Bulk story order repair
	BulkSettings

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"historyatlas.org"`
}

// BulkSettings are the bulk reorder defaults. They parse without the rest of
// [Config], so the command line tool can validate flags before connecting.
type BulkSettings struct {
	BulkBatchSize int `env:"BULK_BATCH_SIZE" envDefault:"1000"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWith parses the environment with overrides, used by tests and tools
// that must not depend on the process environment.
func LoadWith(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StoryWindowSize < 1 {
		return fmt.Errorf("config: STORY_WINDOW_SIZE must be positive, got %d", c.StoryWindowSize)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("config: CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	if c.CacheRefreshInterval <= 0 {
		return fmt.Errorf("config: CACHE_REFRESH_INTERVAL must be positive, got %s", c.CacheRefreshInterval)
	}
	if c.BulkBatchSize < 1 {
		return fmt.Errorf("config: BULK_BATCH_SIZE must be positive, got %d", c.BulkBatchSize)
	}
	if c.CacheRedisOn && c.RedisURL == "" {
		return fmt.Errorf("config: CACHE_REDIS_ENABLED requires REDIS_URL")
	}
	return nil
}

// LoadBulkSettings parses only the bulk reorder defaults.
func LoadBulkSettings() (BulkSettings, error) {
	settings, err := env.ParseAs[BulkSettings]()
	if err != nil {
		return settings, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if settings.BulkBatchSize < 1 {
		return settings, fmt.Errorf("config: BULK_BATCH_SIZE must be positive, got %d", settings.BulkBatchSize)
	}
	return settings, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OriginSuffix is the domain suffix accepted by the CORS middleware.
func (c *Config) OriginSuffix() string {
	return c.AllowedOriginSuffix
}
