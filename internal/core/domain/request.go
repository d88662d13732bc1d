package domain

// ProcessRequest is the caller-facing submission. Payload is stage-specific
// and opaque here; correlation and workflow ids are optional and generated
// when absent.
type ProcessRequest struct {
	DocumentID    string         `json:"document_id" validate:"required"`
	SourceType    string         `json:"source_type" validate:"required"`
	Payload       map[string]any `json:"payload" validate:"required"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
}

type StageSummary struct {
	Stage         StageKey   `json:"stage"`
	Status        StageState `json:"status"`
	DurationMS    int64      `json:"duration_ms,omitempty"`
	UnitsConsumed int64      `json:"units_consumed,omitempty"`
}

// WorkflowResult is always returned, success or failure. On failure it carries
// enough for an automated caller to decide on retry, backoff, or escalation.
type WorkflowResult struct {
	Success          bool           `json:"success"`
	WorkflowID       string         `json:"workflow_id"`
	CorrelationID    string         `json:"correlation_id"`
	OverallStatus    WorkflowState  `json:"overall_status"`
	Stages           []StageSummary `json:"stages,omitempty"`
	Output           map[string]any `json:"output,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	TotalUnits       int64          `json:"total_units"`
	FromCache        bool           `json:"from_cache,omitempty"`
	FailedStage      StageKey       `json:"failed_stage,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ErrorType        string         `json:"error_type,omitempty"`
	ErrorCategory    ErrorCategory  `json:"error_category,omitempty"`
	RetryRecommended bool           `json:"retry_recommended,omitempty"`
}
