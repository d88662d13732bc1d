package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

type StatusRepository struct {
	db *sql.DB
}

func NewStatusRepository(db *sql.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *StatusRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS workflow_status (
	workflow_id TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	overall_status TEXT NOT NULL,
	stages JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_status_correlation_id ON workflow_status(correlation_id);
CREATE INDEX IF NOT EXISTS idx_workflow_status_expires_at ON workflow_status(expires_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Initialize creates the record once; replaying the insert for an existing
// workflow id is a no-op.
func (r *StatusRepository) Initialize(ctx context.Context, record *domain.WorkflowStatusRecord) error {
	stagesJSON, err := json.Marshal(record.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO workflow_status (
	workflow_id, correlation_id, document_id, source_type, overall_status, stages, created_at, updated_at, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (workflow_id) DO NOTHING
`,
		record.WorkflowID, record.CorrelationID, record.DocumentID, record.SourceType,
		string(record.OverallStatus), stagesJSON, record.CreatedAt, record.UpdatedAt, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow status: %w", err)
	}
	return nil
}

func (r *StatusRepository) GetByID(ctx context.Context, workflowID string) (*domain.WorkflowStatusRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT workflow_id, correlation_id, document_id, source_type, overall_status, stages, created_at, updated_at, expires_at
FROM workflow_status
WHERE workflow_id = $1
`, workflowID)

	var record domain.WorkflowStatusRecord
	var stagesRaw []byte
	var overall string

	err := row.Scan(
		&record.WorkflowID, &record.CorrelationID, &record.DocumentID, &record.SourceType,
		&overall, &stagesRaw, &record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrWorkflowNotFound, "get workflow status", fmt.Errorf("id=%s", workflowID))
		}
		return nil, fmt.Errorf("scan workflow status: %w", err)
	}

	if err := json.Unmarshal(stagesRaw, &record.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	record.OverallStatus = domain.WorkflowState(overall)
	for _, stage := range record.Stages {
		record.TotalUnits += stage.UnitsConsumed
	}
	return &record, nil
}

// UpdateStage overwrites the stage entry in full and sets the overall status
// in the same write, so repeating an update is last-write-wins.
func (r *StatusRepository) UpdateStage(ctx context.Context, workflowID string, stage domain.StageKey, status domain.StageStatus, overall domain.WorkflowState) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal stage status: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE workflow_status
SET stages = jsonb_set(stages, ARRAY[$2], $3::jsonb, true), overall_status = $4, updated_at = $5
WHERE workflow_id = $1
`, workflowID, string(stage), statusJSON, string(overall), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update stage status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stage status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrWorkflowNotFound, "update stage status", fmt.Errorf("id=%s", workflowID))
	}
	return nil
}

func (r *StatusRepository) Finalize(ctx context.Context, workflowID string, overall domain.WorkflowState) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE workflow_status
SET overall_status = $2, updated_at = $3
WHERE workflow_id = $1
`, workflowID, string(overall), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finalize workflow status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize workflow status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrWorkflowNotFound, "finalize workflow status", fmt.Errorf("id=%s", workflowID))
	}
	return nil
}
