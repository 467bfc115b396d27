// Package middleware provides HTTP middleware components for the Terascout
// control-plane API.
package middleware

import (
	"time"

	"github.com/navincodesalot/terascout/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for two tiers: global
// (applied to every request) and per-client (keyed by remote address,
// since this control plane has no authenticated principal). Burst
// capacity allows temporary bursts above the sustained rate; a zero
// burst field is computed automatically as 2x rate.
type Config struct {
	GlobalRPS int
	ClientRPS int

	GlobalBurst int
	ClientBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

// LoadConfig loads middleware config from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("TERASCOUT_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("TERASCOUT_CLIENT_RPS", defaultPerClientRPS),

		GlobalBurst: config.GetEnvInt("TERASCOUT_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("TERASCOUT_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration("TERASCOUT_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("TERASCOUT_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("TERASCOUT_RATE_LIMIT_MAX_CLIENTS", maxTrackedClients),
	}
}
