// Package api provides the control-plane HTTP server for terascout scouts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/navincodesalot/terascout/internal/api/middleware"
	"github.com/navincodesalot/terascout/internal/llm"
	"github.com/navincodesalot/terascout/internal/scout"
	"github.com/navincodesalot/terascout/internal/storage"
)

const (
	healthCheckTimeout = 2 * time.Second

	serviceName    = "terascout"
	serviceVersion = "v1.0.0"

	// maxEventsPerScoutResponse bounds GET /api/scouts/<id>'s event list.
	maxEventsPerScoutResponse = 500
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

// setupRoutes registers every HTTP route the control plane exposes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Ops endpoints for K8s probes and monitoring.
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"/", s.handleNotFound},
	)

	// Scout control-plane endpoints.
	mux.HandleFunc("POST /api/scouts", s.handleCreateScout)
	mux.HandleFunc("GET /api/scouts/{id}", s.handleGetScout)
	mux.HandleFunc("DELETE /api/scouts/{id}", s.handleDeleteScout)
}

// registerPublicRoutes registers the ops surface (health probes, catch-all)
// declaratively. There is no authentication to bypass in this control
// plane, but the teacher's declarative Route/registerPublicRoutes shape is
// kept since it documents which endpoints are operational rather than
// domain endpoints at a glance.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with a state-store
// health check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)

		if _, writeErr := w.Write([]byte("storage unavailable")); writeErr != nil {
			s.logger.Error("Failed to write unavailable response",
				slog.String("correlation_id", correlationID),
				slog.String("error", writeErr.Error()),
			)
		}

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("Failed to encode health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// handleCreateScout implements POST /api/scouts per spec.md §4.3: validate
// query/email, compute expiresAt, run source discovery, synthesize a
// scoutId, persist, and spawn the engine instance.
func (s *Server) handleCreateScout(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	var req CreateScoutRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("request body is not valid JSON"))

		return
	}

	if strings.TrimSpace(req.Query) == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest(scout.ErrQueryEmpty.Error()))

		return
	}

	if !strings.Contains(req.Email, "@") {
		WriteErrorResponse(w, r, s.logger, BadRequest(scout.ErrEmailInvalid.Error()))

		return
	}

	now := time.Now().UTC()

	expiresAt, err := s.resolveExpiresAt(req.ExpiresAt, now)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	source, err := s.discoverSource(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("source discovery failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to resolve a source for this query"))

		return
	}

	sc := &scout.Scout{
		ScoutID:   uuid.NewString(),
		Query:     req.Query,
		Email:     req.Email,
		Source:    source,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := sc.Validate(); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	// Held across PutScout and Start so the engine's own first cycle
	// (which also takes this lock, see registry.go) can't begin before
	// the row it reads is actually committed.
	mu := s.locks.Lock(sc.ScoutID)
	defer mu.Unlock()

	if err := s.store.PutScout(r.Context(), sc); err != nil {
		s.logger.Error("failed to persist scout",
			slog.String("correlation_id", correlationID),
			slog.String("scout_id", sc.ScoutID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create scout"))

		return
	}

	if err := s.registry.Start(context.Background(), sc.ScoutID); err != nil {
		s.logger.Error("failed to start engine for new scout",
			slog.String("correlation_id", correlationID),
			slog.String("scout_id", sc.ScoutID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to start scout engine"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(CreateScoutResponse{ScoutID: sc.ScoutID}); err != nil {
		s.logger.Error("failed to encode create-scout response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// resolveExpiresAt computes the scout's expiry: the client-supplied value
// if present (validated against now and the configured maximum lifetime),
// else createdAt + DefaultLifetimeHours.
func (s *Server) resolveExpiresAt(clientValue *time.Time, createdAt time.Time) (time.Time, error) {
	maxLifetime := time.Duration(s.engineCfg.MaxLifetimeHours) * time.Hour

	if clientValue == nil {
		return createdAt.Add(time.Duration(s.engineCfg.DefaultLifetimeHours) * time.Hour), nil
	}

	if !clientValue.After(createdAt) {
		return time.Time{}, scout.ErrExpiresInPast
	}

	if clientValue.Sub(createdAt) > maxLifetime {
		return time.Time{}, scout.ErrExpiresTooFar
	}

	return *clientValue, nil
}

// discoverSource runs the source-discovery model call spec.md §4.2
// describes: extract a short search phrase and time-sensitivity window,
// then build the Google News search URL the engine polls.
func (s *Server) discoverSource(ctx context.Context, rawQuery string) (scout.Source, error) {
	phrase, window, err := s.llm.ExtractQuery(ctx, rawQuery)
	if err != nil {
		return scout.Source{}, err
	}

	return scout.Source{
		URL:      googleNewsSearchURL(phrase, window),
		Label:    phrase,
		Strategy: scout.StrategyHTMLDiff,
	}, nil
}

// googleNewsSearchURL builds the dynamic search URL the engine polls for
// change. A window other than "none" is appended as a `when:` qualifier.
func googleNewsSearchURL(phrase string, window llm.TimeWindow) string {
	q := phrase

	if qualifier := windowQualifier(window); qualifier != "" {
		q = fmt.Sprintf("%s %s", phrase, qualifier)
	}

	return "https://news.google.com/search?q=" + url.QueryEscape(q)
}

func windowQualifier(window llm.TimeWindow) string {
	switch window {
	case llm.Window1Day:
		return "when:1d"
	case llm.Window7Days:
		return "when:7d"
	case llm.Window30Days:
		return "when:30d"
	default:
		return ""
	}
}

// handleGetScout implements GET /api/scouts/<id> per spec.md §4.3: read
// config and events from the state store, 404 if unknown.
func (s *Server) handleGetScout(w http.ResponseWriter, r *http.Request) {
	scoutID := r.PathValue("id")

	sc, err := s.store.GetScout(r.Context(), scoutID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("no scout with this id"))

			return
		}

		s.logger.Error("failed to read scout", slog.String("scout_id", scoutID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to read scout"))

		return
	}

	events, err := s.store.ListEvents(r.Context(), scoutID, maxEventsPerScoutResponse)
	if err != nil {
		s.logger.Error("failed to list scout events", slog.String("scout_id", scoutID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to read scout events"))

		return
	}

	resp := GetScoutResponse{
		Config: ScoutConfigResponse{
			ScoutID:   sc.ScoutID,
			Query:     sc.Query,
			Email:     sc.Email,
			SourceURL: sc.Source.URL,
			CreatedAt: sc.CreatedAt,
			ExpiresAt: sc.ExpiresAt,
		},
		Events: make([]EventResponse, 0, len(events)),
	}

	for _, e := range events {
		resp.Events = append(resp.Events, EventResponse{
			EventID:     e.EventID,
			SourceLabel: e.SourceLabel,
			TLDR:        e.TLDR,
			Summary:     e.Summary,
			Highlights:  e.Highlights,
			IsBreaking:  e.IsBreaking,
			DetectedAt:  e.DetectedAt,
			Notified:    e.Notified,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode get-scout response", slog.String("scout_id", scoutID), slog.String("error", err.Error()))
	}
}

// handleDeleteScout implements DELETE /api/scouts/<id> per spec.md §4.3:
// terminate the engine instance (no-op if absent), wipe the state store,
// and always return ok - this endpoint is idempotent and never 404s.
func (s *Server) handleDeleteScout(w http.ResponseWriter, r *http.Request) {
	scoutID := r.PathValue("id")

	// Stop only cancels the engine's context; the goroutine observes it
	// at its next step boundary and releases the scout lock when it
	// does. Acquiring the lock here blocks until that release, so the
	// delete below can never interleave with an in-flight step commit.
	s.registry.Stop(scoutID)

	mu := s.locks.Lock(scoutID)
	defer mu.Unlock()

	if err := s.store.DeleteScout(r.Context(), scoutID); err != nil {
		s.logger.Error("failed to delete scout", slog.String("scout_id", scoutID), slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(DeleteScoutResponse{OK: true, ScoutID: scoutID}); err != nil {
		s.logger.Error("failed to encode delete-scout response", slog.String("scout_id", scoutID), slog.String("error", err.Error()))
	}
}
