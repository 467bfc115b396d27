package api

import (
	"os"
	"testing"
	"time"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"TERASCOUT_PORT", "TERASCOUT_HOST", "TERASCOUT_READ_TIMEOUT",
		"TERASCOUT_WRITE_TIMEOUT", "TERASCOUT_SHUTDOWN_TIMEOUT", "TERASCOUT_LOG_LEVEL",
		"TERASCOUT_CORS_ALLOWED_ORIGINS", "TERASCOUT_CORS_ALLOWED_METHODS",
		"TERASCOUT_CORS_ALLOWED_HEADERS", "TERASCOUT_CORS_MAX_AGE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadServerConfig()

	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("expected default host %q, got %q", DefaultHost, cfg.Host)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestLoadServerConfig_PortOverride(t *testing.T) {
	t.Setenv("TERASCOUT_PORT", "9090")

	cfg := LoadServerConfig()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}

	if got, want := cfg.Address(), "127.0.0.1:8080"; got != want {
		t.Errorf("expected address %q, got %q", want, got)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	base := ServerConfig{
		Port:            8080,
		Host:            "0.0.0.0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"invalid port", func(c *ServerConfig) { c.Port = 0 }},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }},
		{"empty host", func(c *ServerConfig) { c.Host = "" }},
		{"zero read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }},
		{"zero write timeout", func(c *ServerConfig) { c.WriteTimeout = 0 }},
		{"zero shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestServerConfig_ToCORSConfig(t *testing.T) {
	cfg := ServerConfig{
		CORSAllowedOrigins: []string{"https://example.com"},
		CORSAllowedMethods: []string{"GET"},
		CORSAllowedHeaders: []string{"Content-Type"},
		CORSMaxAge:         3600,
	}

	cors := cfg.ToCORSConfig()

	if got := cors.GetAllowedOrigins(); len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("unexpected allowed origins: %v", got)
	}

	if got := cors.GetMaxAge(); got != 3600 {
		t.Errorf("expected max age 3600, got %d", got)
	}
}
