package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow-orchestrator/internal/config"
	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/ports"
	"github.com/kirillkom/docflow-orchestrator/internal/core/usecase"
	"github.com/kirillkom/docflow-orchestrator/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	orchestrator *usecase.Orchestrator
	statusUC     ports.WorkflowStatusReader
	queue        ports.WorkflowQueue
	metrics      *metrics.HTTPServerMetrics
	cfg          config.Config
}

// NewRouter wires the HTTP surface. queue may be nil, which disables the
// async submission endpoint; m may be nil, which disables /metrics.
func NewRouter(
	orchestrator *usecase.Orchestrator,
	statusUC ports.WorkflowStatusReader,
	queue ports.WorkflowQueue,
	m *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		orchestrator: orchestrator,
		statusUC:     statusUC,
		queue:        queue,
		metrics:      m,
		cfg:          cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/workflows", rt.processWorkflow)
	mux.HandleFunc("/v1/workflows/async", rt.submitWorkflow)
	mux.HandleFunc("/v1/workflows/", rt.getWorkflowStatus)
	mux.HandleFunc("/v1/breakers", rt.listBreakers)
	mux.HandleFunc("/v1/breakers/", rt.resetBreaker)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, defaultMaxInFlight, defaultBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) processWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result := rt.orchestrator.ProcessRequest(r.Context(), req)
	rt.recordWorkflowMetrics(result, time.Since(start))

	writeJSON(w, statusForResult(result), result)
}

func (rt *Router) submitWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.queue == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "async submission is not enabled"})
		return
	}

	var req domain.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.DocumentID == "" || req.SourceType == "" || req.Payload == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_id, source_type and payload are required"})
		return
	}

	// Ids are assigned here so the caller can poll status immediately.
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}

	if err := rt.queue.PublishWorkflowRequest(r.Context(), req); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id":    req.WorkflowID,
		"correlation_id": req.CorrelationID,
		"status":         string(domain.WorkflowInitializing),
	})
}

func (rt *Router) getWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/workflows/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workflow id is required"})
		return
	}

	record, err := rt.statusUC.GetStatus(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": rt.orchestrator.BreakerStatuses()})
}

func (rt *Router) resetBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/breakers/")
	stage, ok := strings.CutSuffix(rest, "/reset")
	if !ok || stage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /v1/breakers/{stage}/reset"})
		return
	}

	if !rt.orchestrator.ResetBreaker(domain.StageKey(stage)) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown stage"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": stage, "state": "closed"})
}

func (rt *Router) recordWorkflowMetrics(result domain.WorkflowResult, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	if result.FromCache {
		rt.metrics.RecordCacheHit(serviceName)
		return
	}
	rt.metrics.RecordWorkflow(serviceName, string(result.OverallStatus), elapsed)
	for _, stage := range result.Stages {
		rt.metrics.RecordStage(serviceName, string(stage.Stage), string(stage.Status),
			time.Duration(stage.DurationMS)*time.Millisecond, stage.UnitsConsumed)
	}
	for _, status := range rt.orchestrator.BreakerStatuses() {
		rt.metrics.SetBreakerOpen(serviceName, status.Name, status.Open)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
