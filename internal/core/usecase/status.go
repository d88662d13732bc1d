package usecase

import (
	"context"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/ports"
)

// StatusQueryUseCase serves the read-only status surface: the stored record
// is returned verbatim, including per-stage activity text and timings.
type StatusQueryUseCase struct {
	store ports.WorkflowStatusStore
}

func NewStatusQueryUseCase(store ports.WorkflowStatusStore) *StatusQueryUseCase {
	return &StatusQueryUseCase{store: store}
}

func (uc *StatusQueryUseCase) GetStatus(ctx context.Context, workflowID string) (*domain.WorkflowStatusRecord, error) {
	return uc.store.GetByID(ctx, workflowID)
}
