package stageclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

func stageRequest() domain.StageRequest {
	return domain.StageRequest{
		CorrelationID: "corr_001",
		WorkflowID:    "wf-1",
		DocumentID:    "doc-1",
		SourceType:    "invoice",
		Input:         map[string]any{"pages": float64(2)},
	}
}

func TestInvokeSuccessCarriesOutputAndUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(correlationIDHeader) != "corr_001" {
			t.Errorf("missing correlation id header")
		}
		var req domain.StageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(domain.StageOutcome{
			Success:       true,
			Output:        map[string]any{"fields": "extracted"},
			UnitsConsumed: 4,
		})
	}))
	defer server.Close()

	client := New(map[domain.StageKey]Endpoint{
		domain.StageExtraction: {URL: server.URL, Timeout: time.Second},
	})

	outcome, err := client.Invoke(context.Background(), domain.StageExtraction, stageRequest())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if outcome.Output["fields"] != "extracted" || outcome.UnitsConsumed != 4 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestInvokeWorkerReportedFailureIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(domain.StageOutcome{
			Success:      false,
			ErrorMessage: "upstream store busy",
			ErrorType:    "unavailable",
		})
	}))
	defer server.Close()

	client := New(map[domain.StageKey]Endpoint{
		domain.StageMatching: {URL: server.URL, Timeout: time.Second},
	})

	outcome, err := client.Invoke(context.Background(), domain.StageMatching, stageRequest())
	if !domain.IsKind(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency-unavailable, got %v", err)
	}
	if outcome == nil || outcome.ErrorMessage != "upstream store busy" {
		t.Fatalf("expected outcome detail alongside the error, got %+v", outcome)
	}
}

func TestInvokeTimeoutBecomesDependencyTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(map[domain.StageKey]Endpoint{
		domain.StageConversion: {URL: server.URL, Timeout: 20 * time.Millisecond},
	})

	_, err := client.Invoke(context.Background(), domain.StageConversion, stageRequest())
	if !domain.IsKind(err, domain.ErrDependencyTimeout) {
		t.Fatalf("expected dependency-timeout, got %v", err)
	}
	if !domain.CategoryOf(err).RetryRecommended() {
		t.Fatalf("timeouts must be retryable")
	}
}

func TestInvokeServerErrorBecomesDependencyUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(map[domain.StageKey]Endpoint{
		domain.StageFinalization: {URL: server.URL, Timeout: time.Second},
	})

	_, err := client.Invoke(context.Background(), domain.StageFinalization, stageRequest())
	if !domain.IsKind(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency-unavailable, got %v", err)
	}
}

func TestInvokeUnauthorizedIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(map[domain.StageKey]Endpoint{
		domain.StageConversion: {URL: server.URL, Timeout: time.Second},
	})

	_, err := client.Invoke(context.Background(), domain.StageConversion, stageRequest())
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if domain.CategoryOf(err).RetryRecommended() {
		t.Fatalf("security failures must not be retryable")
	}
}

func TestInvokeUnknownStageFails(t *testing.T) {
	client := New(nil)
	if _, err := client.Invoke(context.Background(), domain.StageKey("bogus"), stageRequest()); err == nil {
		t.Fatalf("expected error for unconfigured stage")
	}
}
