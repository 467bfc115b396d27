package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/navincodesalot/terascout/internal/config"
	"github.com/navincodesalot/terascout/internal/email"
	"github.com/navincodesalot/terascout/internal/eventbus"
	"github.com/navincodesalot/terascout/internal/fetcher"
	"github.com/navincodesalot/terascout/internal/storage"
)

// ErrAlreadyRunning is returned by Registry.Start when a scout already
// has a live engine goroutine.
var ErrAlreadyRunning = errors.New("engine: scout is already running")

// cycleRetryPause bounds how fast the outer loop retries a failed
// cycle, so a persistent failure (e.g. database outage) doesn't spin.
const cycleRetryPause = 5 * time.Second

// Registry tracks the cancel function for every live engine goroutine,
// so Stop can terminate an in-process engine without knowing anything
// about its internal state — the step runtime observes the cancellation
// at its next Step or Sleep call.
type Registry struct {
	mutex   sync.Mutex
	cancels map[string]context.CancelFunc

	store  storage.Store
	locks  *storage.ScoutLocks
	fetch  fetcher.Fetcher
	llm    Analyzer
	mailer email.Sender
	bus    eventbus.Bus
	cfg    *config.EngineConfig
	logger *slog.Logger
}

// NewRegistry builds a Registry sharing one set of collaborators across
// every scout's engine goroutine.
func NewRegistry(
	store storage.Store,
	locks *storage.ScoutLocks,
	fetch fetcher.Fetcher,
	llmClient Analyzer,
	mailer email.Sender,
	bus eventbus.Bus,
	cfg *config.EngineConfig,
	logger *slog.Logger,
) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		cancels: make(map[string]context.CancelFunc),
		store:   store,
		locks:   locks,
		fetch:   fetch,
		llm:     llmClient,
		mailer:  mailer,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start spawns an engine goroutine for scoutID under parent, tracking its
// cancel function. Returns ErrAlreadyRunning if one is already tracked.
func (r *Registry) Start(parent context.Context, scoutID string) error {
	r.mutex.Lock()

	if _, exists := r.cancels[scoutID]; exists {
		r.mutex.Unlock()
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancels[scoutID] = cancel
	r.mutex.Unlock()

	go func() {
		defer r.forget(scoutID)
		r.run(ctx, scoutID)
	}()

	return nil
}

// Stop cancels scoutID's engine goroutine, if one is tracked. It does
// not wait for the goroutine to observe cancellation and exit.
func (r *Registry) Stop(scoutID string) {
	r.mutex.Lock()
	cancel, exists := r.cancels[scoutID]
	delete(r.cancels, scoutID)
	r.mutex.Unlock()

	if exists {
		cancel()
	}
}

// Running reports whether scoutID currently has a tracked engine
// goroutine.
func (r *Registry) Running(scoutID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.cancels[scoutID]

	return exists
}

func (r *Registry) forget(scoutID string) {
	r.mutex.Lock()
	delete(r.cancels, scoutID)
	r.mutex.Unlock()
}

// run drives scoutID's cycles until expiration, the cycle cap, or ctx
// cancellation. It holds the scout's lock for the duration of each cycle
// so a concurrent control-plane delete cannot race an in-flight step.
func (r *Registry) run(ctx context.Context, scoutID string) {
	logger := r.logger.With("scout_id", scoutID)

	rt := &Runtime{
		ScoutID: scoutID,
		Store:   r.store,
		Fetch:   r.fetch,
		LLM:     r.llm,
		Mailer:  r.mailer,
		Bus:     r.bus,
		Logger:  logger,
	}

	for cycle := 0; cycle < r.cfg.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			logger.Info("engine: stopped", "reason", ctx.Err())
			return
		}

		mu := r.locks.Lock(scoutID)
		expired, err := RunCycle(ctx, rt, cycle, r.cfg)
		mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				logger.Info("engine: stopped mid-cycle", "cycle", cycle, "reason", ctx.Err())
				return
			}

			logger.Error("engine: cycle failed, will retry on next invocation", "cycle", cycle, "error", err)
			// The step runtime re-runs this cycle's failed step (and any
			// after it) on the next outer loop iteration, since only
			// successful steps are memoized — so the loop retries the
			// SAME cycle index rather than advancing.
			cycle--

			select {
			case <-time.After(cycleRetryPause):
			case <-ctx.Done():
				return
			}

			continue
		}

		if expired {
			logger.Info("engine: scout expired, stopping")
			return
		}

		// A fully completed cycle has no further use for its step
		// checkpoints — the next cycle's steps are named with the next
		// cycle index and never collide, but clearing keeps scout_steps
		// from growing unbounded across up to MaxCycles iterations.
		if err := r.store.ClearSteps(ctx, scoutID); err != nil {
			logger.Warn("engine: clear steps after cycle failed", "cycle", cycle, "error", err)
		}
	}

	logger.Info("engine: reached max cycles, stopping", "max_cycles", r.cfg.MaxCycles)

	if err := r.store.ClearSteps(ctx, scoutID); err != nil {
		logger.Warn("engine: clear steps on cap failed", "error", err)
	}
}
