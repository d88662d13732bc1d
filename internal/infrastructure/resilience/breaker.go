package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Classifier reports whether a failed attempt is worth retrying. A nil
// classifier retries every failure.
type Classifier func(err error) bool

// Breaker wraps an operation with bounded exponential-backoff retry and a
// consecutive-failure circuit breaker. One long-lived instance guards one
// downstream dependency and is shared by every concurrent caller of that
// dependency; all state sits behind the mutex.
//
// The state machine is two-state: Closed -> Open -> Closed. There is no
// half-open probing; once the cool-down elapses the breaker closes eagerly
// and the next Execute runs normally.
type Breaker[T any] struct {
	name string
	cfg  Config

	mu           sync.Mutex
	failureCount int
	open         bool
	openedAt     time.Time
}

// Status is a read-only snapshot for health and operator surfaces.
type Status struct {
	Name          string  `json:"name"`
	Open          bool    `json:"open"`
	FailureCount  int     `json:"failure_count"`
	MaxRetries    int     `json:"max_retries"`
	BackoffFactor float64 `json:"backoff_factor"`
}

func NewBreaker[T any](name string, cfg Config) *Breaker[T] {
	return &Breaker[T]{
		name: name,
		cfg:  cfg.normalize(),
	}
}

// Execute attempts op up to MaxRetries times with exponential backoff between
// attempts. It never propagates op's error: ok=false means the operation did
// not complete, either because the breaker was open or because every attempt
// failed. A failed Execute counts once against the breaker regardless of how
// many attempts it made.
func (b *Breaker[T]) Execute(ctx context.Context, op func(context.Context) (T, error), classify Classifier) (T, bool) {
	var zero T
	if op == nil {
		return zero, false
	}
	if classify == nil {
		classify = func(error) bool { return true }
	}

	if !b.allow() {
		slog.Warn("circuit_breaker_short_circuit", "breaker", b.name)
		return zero, false
	}

	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			wait := b.backoffDelay(attempt)
			slog.Warn("retry_attempt",
				"breaker", b.name,
				"attempt", attempt,
				"max_attempts", b.cfg.MaxRetries,
				"backoff_ms", float64(wait.Microseconds())/1000.0,
			)
			if !sleepContext(ctx, wait) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		result, err := op(ctx)
		if err == nil {
			b.recordSuccess()
			return result, true
		}
		slog.Warn("operation_attempt_failed",
			"breaker", b.name,
			"attempt", attempt,
			"error", err,
		)
		if !classify(err) {
			break
		}
	}

	b.recordFailure()
	return zero, false
}

// ResetManually forces the breaker closed and zeroes the failure counter.
func (b *Breaker[T]) ResetManually() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.failureCount = 0
	slog.Info("circuit_breaker_reset", "breaker", b.name, "reason", "manual")
}

func (b *Breaker[T]) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:          b.name,
		Open:          b.open && time.Since(b.openedAt) < b.cfg.CoolDown,
		FailureCount:  b.failureCount,
		MaxRetries:    b.cfg.MaxRetries,
		BackoffFactor: 2.0,
	}
}

// allow reports whether Execute may attempt the operation, closing the
// breaker eagerly once the cool-down has elapsed.
func (b *Breaker[T]) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.cfg.CoolDown {
		return false
	}
	b.open = false
	b.failureCount = 0
	slog.Info("circuit_breaker_reset", "breaker", b.name, "reason", "cooldown")
	return true
}

func (b *Breaker[T]) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	if b.open {
		b.open = false
		slog.Info("circuit_breaker_reset", "breaker", b.name, "reason", "success")
	}
}

func (b *Breaker[T]) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if !b.open && b.failureCount >= b.cfg.FailureThreshold {
		b.open = true
		b.openedAt = time.Now()
		slog.Warn("circuit_breaker_open",
			"breaker", b.name,
			"failure_count", b.failureCount,
			"cooldown_ms", b.cfg.CoolDown.Milliseconds(),
		)
	}
}

// backoffDelay is the wait before the given attempt: none before the first,
// BaseDelay before the second, doubling after that, capped at MaxDelay.
func (b *Breaker[T]) backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	shift := attempt - 2
	if shift > 30 {
		shift = 30
	}
	delay := b.cfg.BaseDelay << shift
	if b.cfg.MaxDelay > 0 && delay > b.cfg.MaxDelay {
		delay = b.cfg.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
