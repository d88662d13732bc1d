package stageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

const correlationIDHeader = "X-Correlation-Id"

// Endpoint describes one stage worker service.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Client invokes stage worker services over HTTP. One shared client serves
// all stages; the per-stage timeout is applied through the request context so
// an exceeded deadline surfaces as a dependency-timeout failure.
type Client struct {
	endpoints  map[domain.StageKey]Endpoint
	httpClient *http.Client
}

func New(endpoints map[domain.StageKey]Endpoint) *Client {
	eps := make(map[domain.StageKey]Endpoint, len(endpoints))
	for stage, ep := range endpoints {
		ep.URL = strings.TrimRight(ep.URL, "/")
		if ep.Timeout <= 0 {
			ep.Timeout = 30 * time.Second
		}
		eps[stage] = ep
	}
	return &Client{
		endpoints:  eps,
		httpClient: &http.Client{},
	}
}

func (c *Client) Invoke(ctx context.Context, stage domain.StageKey, req domain.StageRequest) (*domain.StageOutcome, error) {
	ep, ok := c.endpoints[stage]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for stage %q", stage)
	}

	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal stage request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(correlationIDHeader, req.CorrelationID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrDependencyTimeout, string(stage), err)
		}
		return nil, domain.WrapError(domain.ErrDependencyUnavailable, string(stage), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.WrapError(domain.ErrUnauthorized, string(stage), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, domain.WrapError(domain.ErrDependencyUnavailable, string(stage), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("stage %s: unexpected status %d", stage, resp.StatusCode)
	}

	var outcome domain.StageOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decode stage response: %w", err)
	}
	if !outcome.Success {
		return &outcome, classifyWorkerFailure(stage, outcome)
	}
	return &outcome, nil
}

// classifyWorkerFailure maps the worker's error type string onto the error
// taxonomy so callers get a category and retry recommendation.
func classifyWorkerFailure(stage domain.StageKey, outcome domain.StageOutcome) error {
	detail := outcome.ErrorMessage
	if detail == "" {
		detail = "worker reported failure"
	}
	cause := errors.New(detail)

	switch strings.ToLower(strings.TrimSpace(outcome.ErrorType)) {
	case "timeout", "dependency_timeout":
		return domain.WrapError(domain.ErrDependencyTimeout, string(stage), cause)
	case "unavailable", "dependency_unavailable":
		return domain.WrapError(domain.ErrDependencyUnavailable, string(stage), cause)
	case "unauthorized", "forbidden", "security":
		return domain.WrapError(domain.ErrUnauthorized, string(stage), cause)
	case "validation":
		return domain.WrapError(domain.ErrValidation, string(stage), cause)
	default:
		return fmt.Errorf("stage %s: %w", stage, cause)
	}
}
