package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

func TestInitializeStatusCreatesPendingRecord(t *testing.T) {
	store := newStatusStoreFake()
	tracker := NewStatusTracker(store, time.Hour, nil)

	if !tracker.InitializeStatus(context.Background(), "wf-1", "corr_001", "doc-1", "invoice") {
		t.Fatalf("expected initialize to succeed")
	}

	record, err := store.GetByID(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.OverallStatus != domain.WorkflowInitializing {
		t.Fatalf("expected initializing, got %q", record.OverallStatus)
	}
	if len(record.Stages) != len(domain.PipelineStages()) {
		t.Fatalf("expected %d stage entries, got %d", len(domain.PipelineStages()), len(record.Stages))
	}
	for _, stage := range domain.PipelineStages() {
		if record.Stages[stage].Status != domain.StagePending {
			t.Fatalf("stage %s must start pending, got %q", stage, record.Stages[stage].Status)
		}
	}
	if !record.ExpiresAt.After(record.CreatedAt) {
		t.Fatalf("expected a retention deadline after creation, got %+v", record)
	}
}

func TestUpdateStageStatusRecordsTimingAndActivity(t *testing.T) {
	store := newStatusStoreFake()
	tracker := NewStatusTracker(store, time.Hour, map[domain.StageKey]string{
		domain.StageConversion: "Converting source document",
	})
	tracker.InitializeStatus(context.Background(), "wf-1", "corr_001", "doc-1", "invoice")

	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageConversion, domain.StageInProgress, nil, "")
	record, _ := store.GetByID(context.Background(), "wf-1")
	entry := record.Stages[domain.StageConversion]
	if entry.Status != domain.StageInProgress || entry.StartedAt == nil {
		t.Fatalf("expected in-progress with start time, got %+v", entry)
	}
	if entry.Activity != "Converting source document" {
		t.Fatalf("expected activity text, got %q", entry.Activity)
	}
	if record.OverallStatus != domain.WorkflowProcessing {
		t.Fatalf("expected processing overall, got %q", record.OverallStatus)
	}

	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageConversion, domain.StageSuccess,
		&domain.StageOutcome{Success: true, UnitsConsumed: 3}, "")
	record, _ = store.GetByID(context.Background(), "wf-1")
	entry = record.Stages[domain.StageConversion]
	if entry.Status != domain.StageSuccess || entry.CompletedAt == nil {
		t.Fatalf("expected completed success, got %+v", entry)
	}
	if entry.StartedAt == nil {
		t.Fatalf("completion must preserve the recorded start time")
	}
	if entry.DurationMS < 0 {
		t.Fatalf("duration must be non-negative, got %d", entry.DurationMS)
	}
	if entry.UnitsConsumed != 3 {
		t.Fatalf("expected 3 units, got %d", entry.UnitsConsumed)
	}
}

func TestUpdateStageStatusErrorMarksWorkflowFailed(t *testing.T) {
	store := newStatusStoreFake()
	tracker := NewStatusTracker(store, time.Hour, nil)
	tracker.InitializeStatus(context.Background(), "wf-1", "corr_001", "doc-1", "invoice")

	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageExtraction, domain.StageInProgress, nil, "")
	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageExtraction, domain.StageError, nil, "worker unreachable")

	record, _ := store.GetByID(context.Background(), "wf-1")
	entry := record.Stages[domain.StageExtraction]
	if entry.Status != domain.StageError || entry.ErrorDetail != "worker unreachable" {
		t.Fatalf("expected error detail, got %+v", entry)
	}
	if record.OverallStatus != domain.WorkflowFailed {
		t.Fatalf("stage error must fail the workflow, got %q", record.OverallStatus)
	}
}

func TestUpdateStageStatusIsLastWriteWins(t *testing.T) {
	store := newStatusStoreFake()
	tracker := NewStatusTracker(store, time.Hour, nil)
	tracker.InitializeStatus(context.Background(), "wf-1", "corr_001", "doc-1", "invoice")

	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageMatching, domain.StageInProgress, nil, "")
	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageMatching, domain.StageError, nil, "first attempt")
	tracker.UpdateStageStatus(context.Background(), "wf-1", domain.StageMatching, domain.StageSuccess,
		&domain.StageOutcome{Success: true, UnitsConsumed: 1}, "")

	record, _ := store.GetByID(context.Background(), "wf-1")
	entry := record.Stages[domain.StageMatching]
	if entry.Status != domain.StageSuccess {
		t.Fatalf("expected the last write to win, got %+v", entry)
	}
	if entry.ErrorDetail != "" {
		t.Fatalf("the overwrite must clear the stale error detail, got %q", entry.ErrorDetail)
	}
}

func TestTrackerSoftFailsOnStoreErrors(t *testing.T) {
	store := newStatusStoreFake()
	store.initErr = errors.New("down")
	store.updateErr = errors.New("down")
	store.finalizeErr = errors.New("down")
	tracker := NewStatusTracker(store, time.Hour, nil)

	ctx := context.Background()
	if tracker.InitializeStatus(ctx, "wf-1", "corr_001", "doc-1", "invoice") {
		t.Fatalf("expected initialize to report failure")
	}
	if tracker.UpdateStageStatus(ctx, "wf-1", domain.StageConversion, domain.StageInProgress, nil, "") {
		t.Fatalf("expected update to report failure")
	}
	if tracker.FinalizeStatus(ctx, "wf-1", domain.WorkflowCompleted) {
		t.Fatalf("expected finalize to report failure")
	}
}

func TestFinalizeStatusSetsTerminalState(t *testing.T) {
	store := newStatusStoreFake()
	tracker := NewStatusTracker(store, time.Hour, nil)
	tracker.InitializeStatus(context.Background(), "wf-1", "corr_001", "doc-1", "invoice")

	if !tracker.FinalizeStatus(context.Background(), "wf-1", domain.WorkflowCompleted) {
		t.Fatalf("expected finalize to succeed")
	}
	record, _ := store.GetByID(context.Background(), "wf-1")
	if record.OverallStatus != domain.WorkflowCompleted {
		t.Fatalf("expected completed, got %q", record.OverallStatus)
	}
}
