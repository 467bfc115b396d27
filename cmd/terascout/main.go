// Package main provides the Terascout control-plane and engine process: the
// HTTP API that creates/reads/deletes scouts, and the in-process engine
// goroutines that poll each scout's source until it expires.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/navincodesalot/terascout/internal/api"
	"github.com/navincodesalot/terascout/internal/api/middleware"
	"github.com/navincodesalot/terascout/internal/config"
	"github.com/navincodesalot/terascout/internal/email"
	"github.com/navincodesalot/terascout/internal/engine"
	"github.com/navincodesalot/terascout/internal/eventbus"
	"github.com/navincodesalot/terascout/internal/fetcher"
	"github.com/navincodesalot/terascout/internal/llm"
	"github.com/navincodesalot/terascout/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "terascout"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Terascout service", slog.String("service", name), slog.String("version", version))

	engineCfg, err := config.LoadEngineConfig()
	if err != nil {
		logger.Error("failed to load engine configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, closeStore := mustBuildStore(logger)
	defer closeStore()

	locks := storage.NewScoutLocks()
	fetch := fetcher.NewHTTPFetcher(config.GetEnvDuration("FETCH_TIMEOUT", 30*time.Second), logger)

	llmClient, err := llm.NewClient(config.GetEnvStr("ANTHROPIC_API_KEY", ""))
	if err != nil {
		logger.Error("failed to build llm client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mailer := buildMailer(logger)
	bus := buildEventBus(logger)

	registry := engine.NewRegistry(store, locks, fetch, llmClient, mailer, bus, engineCfg, logger)

	serverConfig.RateLimiter = buildRateLimiter(logger)

	server := api.NewServer(&serverConfig, store, registry, llmClient, engineCfg, locks)

	recoverActiveScouts(store, registry, logger)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Terascout service stopped")
}

// mustBuildStore opens the PostgreSQL connection pool and wraps it in a
// PostgresStore. It exits the process on failure - there is no degraded
// mode for the control plane without a durable store.
func mustBuildStore(logger *slog.Logger) (storage.Store, func()) {
	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("database", dbConfig.MaskDatabaseURL()),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	store := storage.NewPostgresStore(conn, logger)

	return store, func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.String("error", err.Error()))
		}
	}
}

// buildMailer picks an email.Sender based on EMAIL_MODE: "smtp" dials a
// real relay, anything else (including unset) falls back to logging
// emails to the console - the same dev-friendly default the teacher uses
// for its other external collaborators.
func buildMailer(logger *slog.Logger) email.Sender {
	if strings.EqualFold(config.GetEnvStr("EMAIL_MODE", "console"), "smtp") {
		return email.NewSMTPSender(
			config.GetEnvStr("SMTP_HOST", ""),
			config.GetEnvStr("SMTP_PORT", "587"),
			config.GetEnvStr("SMTP_USERNAME", ""),
			config.GetEnvStr("SMTP_PASSWORD", ""),
		)
	}

	return email.NewConsoleSender(logger)
}

// buildEventBus picks an eventbus.Bus based on EVENTBUS_BROKERS: when set,
// publishes engine telemetry to Kafka; otherwise falls back to a no-op bus.
func buildEventBus(logger *slog.Logger) eventbus.Bus {
	brokersStr := config.GetEnvStr("EVENTBUS_BROKERS", "")
	if brokersStr == "" {
		return eventbus.NewNoopBus(logger)
	}

	return eventbus.NewKafkaBus(config.ParseCommaSeparatedList(brokersStr), config.GetEnvStr("EVENTBUS_TOPIC", "terascout.events"), logger)
}

// buildRateLimiter constructs the control plane's in-memory rate limiter
// from its own env-var-backed config.
func buildRateLimiter(logger *slog.Logger) *middleware.InMemoryRateLimiter {
	rl := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())
	logger.Info("rate limiter configured")

	return rl
}

// recoverActiveScouts restarts an engine goroutine for every scout that
// was still active when the process last stopped - this is what makes
// "survives process restarts" true across real process restarts, not
// just in-process panics (spec.md §4.2).
func recoverActiveScouts(store storage.Store, registry *engine.Registry, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scouts, err := store.ListActiveScouts(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("startup recovery: failed to list active scouts", slog.String("error", err.Error()))

		return
	}

	for _, sc := range scouts {
		if err := registry.Start(context.Background(), sc.ScoutID); err != nil {
			logger.Error("startup recovery: failed to start scout",
				slog.String("scout_id", sc.ScoutID),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.Info("startup recovery complete", slog.Int("recovered_scouts", len(scouts)))
}
