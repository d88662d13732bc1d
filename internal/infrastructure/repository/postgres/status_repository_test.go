package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

func TestStatusRepositoryInitializeInsertsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewStatusRepository(db)
	record := domain.NewWorkflowStatusRecord("wf-1", "corr_001", "doc-1", "invoice", 90*24*time.Hour)

	mock.ExpectExec("INSERT INTO workflow_status").
		WithArgs(
			"wf-1", "corr_001", "doc-1", "invoice", string(domain.WorkflowInitializing),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Initialize(context.Background(), record); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusRepositoryGetByIDParsesStagesAndSumsUnits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewStatusRepository(db)
	stages := map[domain.StageKey]domain.StageStatus{
		domain.StageConversion: {Status: domain.StageSuccess, UnitsConsumed: 3},
		domain.StageExtraction: {Status: domain.StageInProgress, UnitsConsumed: 2},
		domain.StageMatching:   {Status: domain.StagePending},
	}
	stagesJSON, _ := json.Marshal(stages)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"workflow_id", "correlation_id", "document_id", "source_type", "overall_status", "stages", "created_at", "updated_at", "expires_at",
	}).AddRow("wf-1", "corr_001", "doc-1", "invoice", string(domain.WorkflowProcessing), stagesJSON, now, now, now.Add(time.Hour))

	mock.ExpectQuery("FROM workflow_status").WithArgs("wf-1").WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.OverallStatus != domain.WorkflowProcessing {
		t.Fatalf("unexpected overall status %q", record.OverallStatus)
	}
	if record.Stages[domain.StageConversion].Status != domain.StageSuccess {
		t.Fatalf("unexpected conversion stage: %+v", record.Stages[domain.StageConversion])
	}
	if record.TotalUnits != 5 {
		t.Fatalf("expected total units 5, got %d", record.TotalUnits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusRepositoryGetByIDReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewStatusRepository(db)
	mock.ExpectQuery("FROM workflow_status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"workflow_id"}))

	_, err = repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusRepositoryUpdateStageWritesStageAndOverall(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewStatusRepository(db)
	mock.ExpectExec("UPDATE workflow_status").
		WithArgs("wf-1", string(domain.StageExtraction), sqlmock.AnyArg(), string(domain.WorkflowFailed), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStage(context.Background(), "wf-1", domain.StageExtraction, domain.StageStatus{
		Status:      domain.StageError,
		ErrorDetail: "worker unavailable",
	}, domain.WorkflowFailed)
	if err != nil {
		t.Fatalf("UpdateStage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusRepositoryFinalizeUnknownWorkflow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewStatusRepository(db)
	mock.ExpectExec("UPDATE workflow_status").
		WithArgs("missing", string(domain.WorkflowCompleted), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Finalize(context.Background(), "missing", domain.WorkflowCompleted)
	if !domain.IsKind(err, domain.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
