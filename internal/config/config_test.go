package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesResilienceDefaults(t *testing.T) {
	t.Setenv("STAGE_MAX_RETRIES", "")
	t.Setenv("STAGE_RETRY_BASE_DELAY", "")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "")
	t.Setenv("BREAKER_COOLDOWN", "")

	cfg := Load()
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 200*time.Millisecond {
		t.Fatalf("expected default base delay 200ms, got %v", cfg.RetryBaseDelay)
	}
	if cfg.BreakerFailureThreshold != 5 {
		t.Fatalf("expected default failure threshold 5, got %d", cfg.BreakerFailureThreshold)
	}
	if cfg.BreakerCoolDown != 30*time.Second {
		t.Fatalf("expected default cooldown 30s, got %v", cfg.BreakerCoolDown)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	t.Setenv("STATUS_RETENTION_DAYS", "30")
	t.Setenv("API_RATE_LIMIT_RPS", "5.5")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()
	if cfg.IdempotencyTTL != time.Hour {
		t.Fatalf("expected ttl override, got %v", cfg.IdempotencyTTL)
	}
	if cfg.StatusRetentionDays != 30 {
		t.Fatalf("expected retention override, got %d", cfg.StatusRetentionDays)
	}
	if cfg.APIRateLimitRPS != 5.5 {
		t.Fatalf("expected rate limit override, got %v", cfg.APIRateLimitRPS)
	}
	if !cfg.TracingEnabled {
		t.Fatalf("expected tracing enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("STAGE_MAX_RETRIES", "many")
	t.Setenv("WORKFLOW_TIMEOUT", "soon")

	cfg := Load()
	if cfg.MaxRetries != 3 {
		t.Fatalf("malformed int must fall back to default, got %d", cfg.MaxRetries)
	}
	if cfg.WorkflowTimeout != 10*time.Minute {
		t.Fatalf("malformed duration must fall back to default, got %v", cfg.WorkflowTimeout)
	}
}

func TestLoadPipelineParsesStages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := `stages:
  conversion:
    url: http://conversion:8081/invoke
    timeout: 30s
    activity: Converting source document
  extraction:
    url: http://extraction:8082/invoke
    timeout: 45s
    activity: Extracting document fields
  matching:
    url: http://matching:8083/invoke
    timeout: 20s
    activity: Matching extracted records
  finalization:
    url: http://finalization:8084/invoke
    timeout: 15s
    activity: Finalizing processed document
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}

	p, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	if len(p.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(p.Stages))
	}
	if time.Duration(p.Stages["extraction"].Timeout) != 45*time.Second {
		t.Fatalf("expected 45s extraction timeout, got %v", p.Stages["extraction"].Timeout)
	}
	if p.Activities()["conversion"] != "Converting source document" {
		t.Fatalf("unexpected activities: %+v", p.Activities())
	}
}

func TestLoadPipelineRejectsMissingStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := `stages:
  conversion:
    url: http://conversion:8081/invoke
    timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}

	if _, err := LoadPipeline(path); err == nil {
		t.Fatalf("expected error for incomplete pipeline")
	}
}
