package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/ports"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/resilience"
)

// StageBreaker guards one stage's worker service. One long-lived instance per
// stage is shared by every concurrent workflow so the breaker sees the health
// of the downstream service across the whole fleet of requests.
type StageBreaker = resilience.Breaker[*domain.StageOutcome]

// Orchestrator sequences the pipeline stages for one unit of work: it
// consults the idempotency cache, keeps the status record current, invokes
// each stage through its circuit breaker, and reports a structured result
// whatever happens.
type Orchestrator struct {
	idem     ports.IdempotencyStore
	tracker  *StatusTracker
	invoker  ports.StageInvoker
	breakers map[domain.StageKey]*StageBreaker

	validate        *validator.Validate
	tracer          trace.Tracer
	workflowTimeout time.Duration
}

func NewOrchestrator(
	idem ports.IdempotencyStore,
	tracker *StatusTracker,
	invoker ports.StageInvoker,
	breakers map[domain.StageKey]*StageBreaker,
	workflowTimeout time.Duration,
) *Orchestrator {
	if workflowTimeout <= 0 {
		workflowTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		idem:            idem,
		tracker:         tracker,
		invoker:         invoker,
		breakers:        breakers,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		tracer:          otel.Tracer("docflow-orchestrator"),
		workflowTimeout: workflowTimeout,
	}
}

// NewStageBreakers builds one breaker per pipeline stage from a single
// config. Construct once at process start and pass by shared reference.
func NewStageBreakers(cfg resilience.Config) map[domain.StageKey]*StageBreaker {
	breakers := make(map[domain.StageKey]*StageBreaker, len(domain.PipelineStages()))
	for _, stage := range domain.PipelineStages() {
		breakers[stage] = resilience.NewBreaker[*domain.StageOutcome](string(stage), cfg)
	}
	return breakers
}

// BreakerStatuses exposes the per-stage breaker snapshots for the operator
// surface.
func (o *Orchestrator) BreakerStatuses() []resilience.Status {
	statuses := make([]resilience.Status, 0, len(o.breakers))
	for _, stage := range domain.PipelineStages() {
		if breaker, ok := o.breakers[stage]; ok {
			statuses = append(statuses, breaker.Status())
		}
	}
	return statuses
}

// ResetBreaker forces the named stage's breaker closed.
func (o *Orchestrator) ResetBreaker(stage domain.StageKey) bool {
	breaker, ok := o.breakers[stage]
	if !ok {
		return false
	}
	breaker.ResetManually()
	return true
}

func (o *Orchestrator) ProcessRequest(ctx context.Context, req domain.ProcessRequest) domain.WorkflowResult {
	start := time.Now()

	if err := o.validate.Struct(req); err != nil {
		// No ids assigned, no status record created: the request never
		// entered the pipeline.
		return failureResult(domain.WorkflowResult{
			WorkflowID:    req.WorkflowID,
			CorrelationID: req.CorrelationID,
			OverallStatus: domain.WorkflowFailed,
		}, domain.WrapError(domain.ErrValidation, "validate request", err), start)
	}

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}

	// Caller disconnects must not abort in-flight stage calls: a half-done
	// worker invocation can leave the downstream service in an ambiguous
	// state, so the pipeline runs to completion on a detached context and
	// cancellation only suppresses the response.
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.workflowTimeout)
	defer cancel()

	procCtx, span := o.tracer.Start(procCtx, "ProcessWorkflow", trace.WithAttributes(
		attribute.String("workflow.id", req.WorkflowID),
		attribute.String("workflow.correlation_id", req.CorrelationID),
		attribute.String("workflow.document_id", req.DocumentID),
	))
	defer span.End()

	if cached := o.idem.CheckAndSet(procCtx, req.CorrelationID, req.Payload); cached != nil {
		slog.Info("workflow_served_from_cache",
			"workflow_id", cached.WorkflowID,
			"correlation_id", req.CorrelationID,
		)
		span.SetAttributes(attribute.Bool("workflow.from_cache", true))
		return *cached
	}

	o.tracker.InitializeStatus(procCtx, req.WorkflowID, req.CorrelationID, req.DocumentID, req.SourceType)

	result := domain.WorkflowResult{
		WorkflowID:    req.WorkflowID,
		CorrelationID: req.CorrelationID,
	}

	input := req.Payload
	for _, stage := range domain.PipelineStages() {
		stageStart := time.Now()
		outcome, err := o.runStage(procCtx, stage, req, input)
		if err != nil {
			o.tracker.UpdateStageStatus(procCtx, req.WorkflowID, stage, domain.StageError, outcome, err.Error())
			o.tracker.FinalizeStatus(procCtx, req.WorkflowID, domain.WorkflowFailed)

			result.Stages = append(result.Stages, stageSummary(stage, domain.StageError, outcome, stageStart))
			result.OverallStatus = domain.WorkflowFailed
			result.FailedStage = stage
			if outcome != nil {
				result.ErrorType = outcome.ErrorType
				result.TotalUnits += outcome.UnitsConsumed
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return failureResult(result, err, start)
		}

		o.tracker.UpdateStageStatus(procCtx, req.WorkflowID, stage, domain.StageSuccess, outcome, "")
		result.Stages = append(result.Stages, stageSummary(stage, domain.StageSuccess, outcome, stageStart))
		result.TotalUnits += outcome.UnitsConsumed
		if outcome.Output != nil {
			input = outcome.Output
		}
	}

	o.tracker.FinalizeStatus(procCtx, req.WorkflowID, domain.WorkflowCompleted)

	result.Success = true
	result.OverallStatus = domain.WorkflowCompleted
	result.Output = input
	result.ProcessingTimeMS = time.Since(start).Milliseconds()

	o.idem.SetResult(procCtx, req.CorrelationID, result)
	return result
}

// runStage invokes one stage through its breaker. The breaker swallows the
// operation error, so the closure captures the last attempt's failure for
// classification; a nil captured error with ok=false means the breaker was
// open and never invoked the worker.
func (o *Orchestrator) runStage(ctx context.Context, stage domain.StageKey, req domain.ProcessRequest, input map[string]any) (*domain.StageOutcome, error) {
	breaker, ok := o.breakers[stage]
	if !ok {
		return nil, fmt.Errorf("no breaker configured for stage %q", stage)
	}

	ctx, span := o.tracer.Start(ctx, "InvokeStage", trace.WithAttributes(
		attribute.String("stage.key", string(stage)),
	))
	defer span.End()

	o.tracker.UpdateStageStatus(ctx, req.WorkflowID, stage, domain.StageInProgress, nil, "")

	var lastErr error
	var lastOutcome *domain.StageOutcome
	outcome, completed := breaker.Execute(ctx, func(callCtx context.Context) (*domain.StageOutcome, error) {
		out, err := o.invoker.Invoke(callCtx, stage, domain.StageRequest{
			CorrelationID: req.CorrelationID,
			WorkflowID:    req.WorkflowID,
			DocumentID:    req.DocumentID,
			SourceType:    req.SourceType,
			Input:         input,
		})
		if err != nil {
			lastErr = err
			lastOutcome = out
			return nil, err
		}
		return out, nil
	}, retryableFailure)

	if completed {
		return outcome, nil
	}
	if lastErr == nil {
		lastErr = domain.WrapError(domain.ErrDependencyUnavailable, string(stage), fmt.Errorf("circuit breaker open"))
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastOutcome, lastErr
}

func retryableFailure(err error) bool {
	return domain.CategoryOf(err).RetryRecommended()
}

func stageSummary(stage domain.StageKey, state domain.StageState, outcome *domain.StageOutcome, start time.Time) domain.StageSummary {
	summary := domain.StageSummary{
		Stage:      stage,
		Status:     state,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if outcome != nil {
		summary.UnitsConsumed = outcome.UnitsConsumed
	}
	return summary
}

func failureResult(result domain.WorkflowResult, err error, start time.Time) domain.WorkflowResult {
	category := domain.CategoryOf(err)
	result.Success = false
	if result.OverallStatus == "" {
		result.OverallStatus = domain.WorkflowFailed
	}
	result.ErrorMessage = err.Error()
	if result.ErrorType == "" {
		result.ErrorType = string(category)
	}
	result.ErrorCategory = category
	result.RetryRecommended = category.RetryRecommended()
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result
}
