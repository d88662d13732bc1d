package domain

import "time"

type StageKey string

const (
	StageConversion   StageKey = "conversion"
	StageExtraction   StageKey = "extraction"
	StageMatching     StageKey = "matching"
	StageFinalization StageKey = "finalization"
)

// PipelineStages returns the fixed stage order. Stage output feeds the next
// stage, so the order is part of the contract.
func PipelineStages() []StageKey {
	return []StageKey{StageConversion, StageExtraction, StageMatching, StageFinalization}
}

type StageState string

const (
	StagePending    StageState = "pending"
	StageInProgress StageState = "in_progress"
	StageSuccess    StageState = "success"
	StageError      StageState = "error"
)

type WorkflowState string

const (
	WorkflowInitializing WorkflowState = "initializing"
	WorkflowProcessing   WorkflowState = "processing"
	WorkflowCompleted    WorkflowState = "completed"
	WorkflowFailed       WorkflowState = "failed"
)

// StageStatus is one stage entry inside a WorkflowStatusRecord. Writes are
// full-field overwrites of the entry, so repeating an update is harmless.
type StageStatus struct {
	Status        StageState `json:"status"`
	Activity      string     `json:"activity,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMS    int64      `json:"duration_ms,omitempty"`
	UnitsConsumed int64      `json:"units_consumed,omitempty"`
	ErrorDetail   string     `json:"error_detail,omitempty"`
}

type WorkflowStatusRecord struct {
	WorkflowID    string                   `json:"workflow_id"`
	CorrelationID string                   `json:"correlation_id"`
	DocumentID    string                   `json:"document_id"`
	SourceType    string                   `json:"source_type"`
	OverallStatus WorkflowState            `json:"overall_status"`
	Stages        map[StageKey]StageStatus `json:"stages"`
	TotalUnits    int64                    `json:"total_units"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	ExpiresAt     time.Time                `json:"expires_at"`
}

// NewWorkflowStatusRecord builds the initial record with every stage pending.
func NewWorkflowStatusRecord(workflowID, correlationID, documentID, sourceType string, retention time.Duration) *WorkflowStatusRecord {
	now := time.Now().UTC()
	stages := make(map[StageKey]StageStatus, len(PipelineStages()))
	for _, stage := range PipelineStages() {
		stages[stage] = StageStatus{Status: StagePending}
	}
	return &WorkflowStatusRecord{
		WorkflowID:    workflowID,
		CorrelationID: correlationID,
		DocumentID:    documentID,
		SourceType:    sourceType,
		OverallStatus: WorkflowInitializing,
		Stages:        stages,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(retention),
	}
}

// StageRequest is the payload sent to one stage worker service.
type StageRequest struct {
	CorrelationID string         `json:"correlation_id"`
	WorkflowID    string         `json:"workflow_id"`
	DocumentID    string         `json:"document_id"`
	SourceType    string         `json:"source_type"`
	Input         map[string]any `json:"input"`
}

// StageOutcome is a stage worker's response. Output is opaque to the
// orchestrator and carried forward as the next stage's input.
type StageOutcome struct {
	Success       bool           `json:"success"`
	Output        map[string]any `json:"output,omitempty"`
	UnitsConsumed int64          `json:"units_consumed,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorType     string         `json:"error_type,omitempty"`
}
