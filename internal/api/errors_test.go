package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProblemDetail(t *testing.T) {
	p := NewProblemDetail(http.StatusBadRequest, "Bad Request", "query is empty")

	if p.Status != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, p.Status)
	}

	if p.Title != "Bad Request" {
		t.Errorf("expected title %q, got %q", "Bad Request", p.Title)
	}

	if p.Detail != "query is empty" {
		t.Errorf("expected detail %q, got %q", "query is empty", p.Detail)
	}

	want := "https://terascout.example.com/problems/400"
	if p.Type != want {
		t.Errorf("expected type %q, got %q", want, p.Type)
	}
}

func TestProblemDetail_WithInstanceAndCorrelationID(t *testing.T) {
	p := NewProblemDetail(http.StatusNotFound, "Not Found", "no such scout").
		WithInstance("/api/scouts/abc").
		WithCorrelationID("cid-123")

	if p.Instance != "/api/scouts/abc" {
		t.Errorf("expected instance to be set, got %q", p.Instance)
	}

	if p.CorrelationID != "cid-123" {
		t.Errorf("expected correlation id to be set, got %q", p.CorrelationID)
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *ProblemDetail
		wantStatus int
		wantTitle  string
	}{
		{"internal server error", InternalServerError("boom"), http.StatusInternalServerError, "Internal Server Error"},
		{"bad request", BadRequest("bad"), http.StatusBadRequest, "Bad Request"},
		{"not found", NotFound("missing"), http.StatusNotFound, "Not Found"},
		{"method not allowed", MethodNotAllowed("nope"), http.StatusMethodNotAllowed, "Method Not Allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.problem.Status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, tt.problem.Status)
			}

			if tt.problem.Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, tt.problem.Title)
			}
		})
	}
}

func TestWriteErrorResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/scouts/missing", nil)
	rec := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	WriteErrorResponse(rec, req, logger, NotFound("no such scout"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected content type application/problem+json, got %q", ct)
	}

	var got ProblemDetail
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if got.Instance != "/api/scouts/missing" {
		t.Errorf("expected instance to default to request path, got %q", got.Instance)
	}
}

// testWriter adapts *testing.T to io.Writer so slog output lands in test logs.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
