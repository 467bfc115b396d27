package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxEmailsPerScoutPerDay gates outbound notification dispatch.
	DefaultMaxEmailsPerScoutPerDay = 10
	// DefaultLifetimeHours is the default expiresAt offset from createdAt.
	DefaultLifetimeHours = 72
	// DefaultMaxLifetimeHours caps a client-supplied expiresAt.
	DefaultMaxLifetimeHours = 168
	// DefaultPollInterval is the durable sleep between cycles.
	DefaultPollInterval = 10 * time.Minute
	// DefaultMaxCycles is the hard upper bound per engine instance.
	DefaultMaxCycles = 200
	// DefaultMaxSnapshotTextLength truncates text on store write.
	DefaultMaxSnapshotTextLength = 5000
	// DefaultMaxAITextLength truncates text passed to the analyzer.
	DefaultMaxAITextLength = 2500
	// DefaultDedupeLookback is the recent-event window considered for dedup.
	DefaultDedupeLookback = 5
)

// Static validation errors.
var (
	ErrMaxEmailsNonPositive    = errors.New("maxEmailsPerScoutPerDay must be positive")
	ErrLifetimeNonPositive     = errors.New("defaultLifetimeHours must be positive")
	ErrMaxLifetimeTooSmall     = errors.New("maxLifetimeHours must be >= defaultLifetimeHours")
	ErrPollIntervalNonPositive = errors.New("pollInterval must be positive")
	ErrMaxCyclesNonPositive    = errors.New("maxCycles must be positive")
	ErrDedupeLookbackNegative  = errors.New("dedupeLookback must be non-negative")
)

// EngineConfig is the process-wide, loaded-once-at-startup configuration
// table governing every scout engine instance (spec §6).
type EngineConfig struct {
	MaxEmailsPerScoutPerDay int
	DefaultLifetimeHours    int
	MaxLifetimeHours        int
	PollInterval            time.Duration
	MaxCycles               int
	MaxSnapshotTextLength   int
	MaxAITextLength         int
	DedupeLookback          int
}

// engineConfigOverlay mirrors EngineConfig for optional YAML overlay decoding;
// every field is a pointer so a partially-specified file only overrides the
// keys it actually names.
type engineConfigOverlay struct {
	MaxEmailsPerScoutPerDay *int    `yaml:"maxEmailsPerScoutPerDay"`
	DefaultLifetimeHours    *int    `yaml:"defaultLifetimeHours"`
	MaxLifetimeHours        *int    `yaml:"maxLifetimeHours"`
	PollInterval            *string `yaml:"pollInterval"`
	MaxCycles               *int    `yaml:"maxCycles"`
	MaxSnapshotTextLength   *int    `yaml:"maxSnapshotTextLength"`
	MaxAITextLength         *int    `yaml:"maxAiTextLength"`
	DedupeLookback          *int    `yaml:"dedupeLookback"`
}

// LoadEngineConfig loads the engine configuration table from environment
// variables, then applies an optional config.yaml overlay (path from
// CONFIG_FILE, default "config.yaml" if present) — env vars set the
// baseline, the file only overrides keys it names, mirroring the
// env-vars-plus-typed-getters style used throughout the store's own config.
func LoadEngineConfig() (*EngineConfig, error) {
	cfg := &EngineConfig{
		MaxEmailsPerScoutPerDay: GetEnvInt("MAX_EMAILS_PER_SCOUT_PER_DAY", DefaultMaxEmailsPerScoutPerDay),
		DefaultLifetimeHours:    GetEnvInt("DEFAULT_LIFETIME_HOURS", DefaultLifetimeHours),
		MaxLifetimeHours:        GetEnvInt("MAX_LIFETIME_HOURS", DefaultMaxLifetimeHours),
		PollInterval:            GetEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		MaxCycles:               GetEnvInt("MAX_CYCLES", DefaultMaxCycles),
		MaxSnapshotTextLength:   GetEnvInt("MAX_SNAPSHOT_TEXT_LENGTH", DefaultMaxSnapshotTextLength),
		MaxAITextLength:         GetEnvInt("MAX_AI_TEXT_LENGTH", DefaultMaxAITextLength),
		DedupeLookback:          GetEnvInt("DEDUPE_LOOKBACK", DefaultDedupeLookback),
	}

	if err := applyYAMLOverlay(cfg, GetEnvStr("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the invariants the engine relies on at startup.
func (c *EngineConfig) Validate() error {
	if c.MaxEmailsPerScoutPerDay <= 0 {
		return ErrMaxEmailsNonPositive
	}

	if c.DefaultLifetimeHours <= 0 {
		return ErrLifetimeNonPositive
	}

	if c.MaxLifetimeHours < c.DefaultLifetimeHours {
		return ErrMaxLifetimeTooSmall
	}

	if c.PollInterval <= 0 {
		return ErrPollIntervalNonPositive
	}

	if c.MaxCycles <= 0 {
		return ErrMaxCyclesNonPositive
	}

	if c.DedupeLookback < 0 {
		return ErrDedupeLookbackNegative
	}

	return nil
}

// applyYAMLOverlay merges a YAML file's present keys onto cfg. A missing
// file is not an error — the overlay is optional.
func applyYAMLOverlay(cfg *EngineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read config overlay %s: %w", path, err)
	}

	var overlay engineConfigOverlay

	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config overlay %s: %w", path, err)
	}

	if overlay.MaxEmailsPerScoutPerDay != nil {
		cfg.MaxEmailsPerScoutPerDay = *overlay.MaxEmailsPerScoutPerDay
	}

	if overlay.DefaultLifetimeHours != nil {
		cfg.DefaultLifetimeHours = *overlay.DefaultLifetimeHours
	}

	if overlay.MaxLifetimeHours != nil {
		cfg.MaxLifetimeHours = *overlay.MaxLifetimeHours
	}

	if overlay.PollInterval != nil {
		d, err := time.ParseDuration(*overlay.PollInterval)
		if err != nil {
			return fmt.Errorf("parse pollInterval %q in %s: %w", *overlay.PollInterval, path, err)
		}

		cfg.PollInterval = d
	}

	if overlay.MaxCycles != nil {
		cfg.MaxCycles = *overlay.MaxCycles
	}

	if overlay.MaxSnapshotTextLength != nil {
		cfg.MaxSnapshotTextLength = *overlay.MaxSnapshotTextLength
	}

	if overlay.MaxAITextLength != nil {
		cfg.MaxAITextLength = *overlay.MaxAITextLength
	}

	if overlay.DedupeLookback != nil {
		cfg.DedupeLookback = *overlay.DedupeLookback
	}

	return nil
}
