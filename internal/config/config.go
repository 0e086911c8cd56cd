// Package config provides environment-aware configuration management for the kernel.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	slruntime "github.com/dot-do/entitykernel/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all process configuration for the kernel service.
type Config struct {
	Env Environment

	// HTTP
	ListenAddr string

	// Storage: DATABASE_DSN configures the shared Postgres instance that hosts
	// one schema (or database) per tenant; empty DSN means every tenant kernel
	// falls back to the in-memory storage engine.
	DatabaseDSN      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Security
	JWTSecret         string
	JWTExpiry         time.Duration
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string

	// Dispatch tuning
	DispatchWorkers    int
	DispatchQueueSize  int
	DispatchTimeout    time.Duration
	DispatchRetention  time.Duration

	// CDC stream
	CDCBufferSize int

	// Features
	EnableProfiling      bool
	EnableDebugEndpoints bool
	TestMode             bool
	MetricsEnabled       bool
	MetricsPort          int
	TracingEnabled       bool
	TracingEndpoint      string
}

// Load loads configuration based on the KERNEL_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("KERNEL_ENV")
	if envStr == "" {
		envStr = string(slruntime.Development)
	}

	parsedEnv, ok := slruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid KERNEL_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	// Load environment-specific .env file.
	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		// Config file is optional; only warn on non-"file not found" errors
		// (e.g. parse errors) to avoid noisy logs during tests and CI runs.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.ListenAddr = getEnv("LISTEN_ADDR", ":8080")

	c.DatabaseDSN = getEnv("DATABASE_DSN", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout := getEnv("DB_IDLE_TIMEOUT", "5m")
	idle, err := time.ParseDuration(dbIdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idle

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.JWTSecret = getEnv("JWT_SECRET", "")
	jwtExpiry := getEnv("JWT_EXPIRY", "15m")
	c.JWTExpiry, err = time.ParseDuration(jwtExpiry)
	if err != nil {
		return fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}
	c.RateLimitEnabled = getBoolEnv("RATE_LIMIT_ENABLED", true)
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", 100)
	rateLimitWindow := getEnv("RATE_LIMIT_WINDOW", "1m")
	c.RateLimitWindow, err = time.ParseDuration(rateLimitWindow)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	c.CORSOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", getEnv("CORS_ORIGINS", "*")), ",")

	c.DispatchWorkers = getIntEnv("DISPATCH_WORKERS", 8)
	c.DispatchQueueSize = getIntEnv("DISPATCH_QUEUE_SIZE", 1000)
	dispatchTimeout := getEnv("DISPATCH_TIMEOUT", "10s")
	c.DispatchTimeout, err = time.ParseDuration(dispatchTimeout)
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_TIMEOUT: %w", err)
	}
	dispatchRetention := getEnv("DISPATCH_LOG_RETENTION", "168h")
	c.DispatchRetention, err = time.ParseDuration(dispatchRetention)
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_LOG_RETENTION: %w", err)
	}

	c.CDCBufferSize = getIntEnv("CDC_BUFFER_SIZE", 1000)

	c.EnableProfiling = getBoolEnv("ENABLE_PROFILING", false)
	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)
	c.TestMode = getBoolEnv("TEST_MODE", false)
	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)
	c.TracingEnabled = getBoolEnv("TRACING_ENABLED", false)
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", "")

	return nil
}

// IsDevelopment returns true if running in the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration, enforcing production-safety invariants.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if !c.RateLimitEnabled {
			return fmt.Errorf("RATE_LIMIT_ENABLED must be true in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}

	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if c.CDCBufferSize < 1 {
		return fmt.Errorf("CDC_BUFFER_SIZE must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
