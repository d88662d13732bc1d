package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/ports"
)

// DefaultStatusRetention keeps finished records queryable for audit.
const DefaultStatusRetention = 90 * 24 * time.Hour

// StatusTracker maintains the per-workflow status record. Every mutation is
// soft-fail: a store error is logged and reported as false, never allowed to
// abort the workflow the tracker is observing.
type StatusTracker struct {
	store      ports.WorkflowStatusStore
	retention  time.Duration
	activities map[domain.StageKey]string
}

func NewStatusTracker(store ports.WorkflowStatusStore, retention time.Duration, activities map[domain.StageKey]string) *StatusTracker {
	if retention <= 0 {
		retention = DefaultStatusRetention
	}
	return &StatusTracker{
		store:      store,
		retention:  retention,
		activities: activities,
	}
}

func (t *StatusTracker) InitializeStatus(ctx context.Context, workflowID, correlationID, documentID, sourceType string) bool {
	record := domain.NewWorkflowStatusRecord(workflowID, correlationID, documentID, sourceType, t.retention)
	if err := t.store.Initialize(ctx, record); err != nil {
		slog.Warn("status_initialize_failed", "workflow_id", workflowID, "error", err)
		return false
	}
	return true
}

// UpdateStageStatus transitions one stage and derives the overall status in
// the same write: error forces failed, anything else keeps the workflow
// processing. The stage entry is overwritten in full, so duplicate calls are
// last-write-wins.
func (t *StatusTracker) UpdateStageStatus(ctx context.Context, workflowID string, stage domain.StageKey, state domain.StageState, outcome *domain.StageOutcome, errDetail string) bool {
	now := time.Now().UTC()
	status := domain.StageStatus{
		Status:   state,
		Activity: t.activities[stage],
	}

	switch state {
	case domain.StageInProgress:
		status.StartedAt = &now
	case domain.StageSuccess, domain.StageError:
		status.StartedAt = t.storedStartTime(ctx, workflowID, stage)
		status.CompletedAt = &now
		if status.StartedAt != nil {
			duration := now.Sub(*status.StartedAt)
			if duration < 0 {
				duration = 0
			}
			status.DurationMS = duration.Milliseconds()
		}
		if outcome != nil {
			status.UnitsConsumed = outcome.UnitsConsumed
		}
		if state == domain.StageError {
			status.ErrorDetail = errDetail
		}
	}

	overall := domain.WorkflowProcessing
	if state == domain.StageError {
		overall = domain.WorkflowFailed
	}

	if err := t.store.UpdateStage(ctx, workflowID, stage, status, overall); err != nil {
		slog.Warn("status_update_failed",
			"workflow_id", workflowID,
			"stage", stage,
			"stage_status", state,
			"error", err,
		)
		return false
	}
	return true
}

func (t *StatusTracker) FinalizeStatus(ctx context.Context, workflowID string, overall domain.WorkflowState) bool {
	if err := t.store.Finalize(ctx, workflowID, overall); err != nil {
		slog.Warn("status_finalize_failed", "workflow_id", workflowID, "overall_status", overall, "error", err)
		return false
	}
	return true
}

func (t *StatusTracker) storedStartTime(ctx context.Context, workflowID string, stage domain.StageKey) *time.Time {
	record, err := t.store.GetByID(ctx, workflowID)
	if err != nil {
		return nil
	}
	entry, ok := record.Stages[stage]
	if !ok {
		return nil
	}
	return entry.StartedAt
}
