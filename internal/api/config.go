// Package api provides the control-plane HTTP server for terascout scouts.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/navincodesalot/terascout/internal/api/middleware"
	"github.com/navincodesalot/terascout/internal/config"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
	// DefaultHost is the default server host.
	DefaultHost = "0.0.0.0"
	// DefaultTimeout is the default timeout for HTTP operations.
	DefaultTimeout = 30 * time.Second
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = slog.LevelInfo
	// DefaultCORSMaxAge is the default CORS max age (24 hours).
	DefaultCORSMaxAge = 86400
)

// Static validation errors.
var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrEmptyHost              = errors.New("host cannot be empty")
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
)

// ServerConfig holds HTTP server configuration. It is pure configuration
// (ports, timeouts, CORS) — collaborators (store, engine registry, rate
// limiter) are injected separately into NewServer, never folded in here.
type ServerConfig struct {
	Port               int
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int
	RateLimiter        middleware.RateLimiter
}

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Port:               DefaultPort,
		Host:               DefaultHost,
		ReadTimeout:        DefaultTimeout,
		WriteTimeout:       DefaultTimeout,
		ShutdownTimeout:    DefaultTimeout,
		LogLevel:           DefaultLogLevel,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Correlation-ID"},
		CORSMaxAge:         DefaultCORSMaxAge,
	}

	loadServerAddress(&cfg)
	loadTimeouts(&cfg)
	loadLogLevel(&cfg)
	loadCORSConfig(&cfg)

	return cfg
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to a CORSConfig.
func (c ServerConfig) ToCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func (c CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }
func (c CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }
func (c CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }
func (c CORSConfig) GetMaxAge() int              { return c.MaxAge }

// Validate validates the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, MaxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	return nil
}

func loadServerAddress(cfg *ServerConfig) {
	if portStr := config.GetEnvStr("TERASCOUT_PORT", ""); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= MaxPort {
			cfg.Port = port
		}
	}

	if host := config.GetEnvStr("TERASCOUT_HOST", ""); host != "" {
		cfg.Host = host
	}
}

func loadTimeouts(cfg *ServerConfig) {
	cfg.ReadTimeout = config.GetEnvDuration("TERASCOUT_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = config.GetEnvDuration("TERASCOUT_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = config.GetEnvDuration("TERASCOUT_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
}

func loadLogLevel(cfg *ServerConfig) {
	cfg.LogLevel = config.GetEnvLogLevel("TERASCOUT_LOG_LEVEL", cfg.LogLevel)
}

func loadCORSConfig(cfg *ServerConfig) {
	if originsStr := config.GetEnvStr("TERASCOUT_CORS_ALLOWED_ORIGINS", ""); originsStr != "" {
		cfg.CORSAllowedOrigins = config.ParseCommaSeparatedList(originsStr)
	}

	if methodsStr := config.GetEnvStr("TERASCOUT_CORS_ALLOWED_METHODS", ""); methodsStr != "" {
		cfg.CORSAllowedMethods = config.ParseCommaSeparatedList(methodsStr)
	}

	if headersStr := config.GetEnvStr("TERASCOUT_CORS_ALLOWED_HEADERS", ""); headersStr != "" {
		cfg.CORSAllowedHeaders = config.ParseCommaSeparatedList(headersStr)
	}

	cfg.CORSMaxAge = config.GetEnvInt("TERASCOUT_CORS_MAX_AGE", cfg.CORSMaxAge)
}
