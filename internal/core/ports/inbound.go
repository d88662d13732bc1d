package ports

import (
	"context"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

// WorkflowProcessor is the inbound contract for running one unit of work
// through the full pipeline.
type WorkflowProcessor interface {
	ProcessRequest(ctx context.Context, req domain.ProcessRequest) domain.WorkflowResult
}

// WorkflowStatusReader is the inbound read model for live workflow progress.
type WorkflowStatusReader interface {
	GetStatus(ctx context.Context, workflowID string) (*domain.WorkflowStatusRecord, error)
}
