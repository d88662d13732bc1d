package ports

import (
	"context"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

// IdempotencyStore maps a correlation id to a cached workflow result. It is a
// best-effort layer: implementations fail open on store errors and never
// surface them to the owning workflow.
type IdempotencyStore interface {
	// CheckAndSet returns the cached result for the correlation id, or nil
	// when the caller should proceed (miss, expiry, payload-hash mismatch,
	// or store failure). On a miss it records the id as in progress.
	CheckAndSet(ctx context.Context, correlationID string, payload map[string]any) *domain.WorkflowResult

	// SetResult marks the correlation id completed with the final result.
	// No-op on store failure.
	SetResult(ctx context.Context, correlationID string, result domain.WorkflowResult)
}

// WorkflowStatusStore persists WorkflowStatusRecords.
type WorkflowStatusStore interface {
	Initialize(ctx context.Context, record *domain.WorkflowStatusRecord) error
	GetByID(ctx context.Context, workflowID string) (*domain.WorkflowStatusRecord, error)
	// UpdateStage overwrites the named stage entry in full and sets the
	// overall status and last-updated timestamp in the same write.
	UpdateStage(ctx context.Context, workflowID string, stage domain.StageKey, status domain.StageStatus, overall domain.WorkflowState) error
	Finalize(ctx context.Context, workflowID string, overall domain.WorkflowState) error
}

// StageInvoker calls one pipeline stage's worker service. A nil error means
// the worker reported success; worker-reported failures come back as typed
// errors alongside the outcome detail.
type StageInvoker interface {
	Invoke(ctx context.Context, stage domain.StageKey, req domain.StageRequest) (*domain.StageOutcome, error)
}

// WorkflowQueue publishes/consumes asynchronously submitted workflow requests.
type WorkflowQueue interface {
	PublishWorkflowRequest(ctx context.Context, req domain.ProcessRequest) error
	SubscribeWorkflowRequests(ctx context.Context, handler func(context.Context, domain.ProcessRequest) error) error
}
