package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/resilience"
)

// Queue carries asynchronous workflow submissions between the API and the
// worker over a NATS subject. Messages are JSON-encoded ProcessRequest
// values; the queue group makes delivery at-most-once per worker fleet, and
// the idempotency cache absorbs any redelivery.
type Queue struct {
	conn    *nats.Conn
	subject string
	breaker *resilience.Breaker[struct{}]
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	PublishBreaker       *resilience.Breaker[struct{}]
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docflow-orchestrator"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:    conn,
		subject: subject,
		breaker: options.PublishBreaker,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishWorkflowRequest(ctx context.Context, req domain.ProcessRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode workflow request: %w", err)
	}

	publish := func(_ context.Context) (struct{}, error) {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return struct{}{}, fmt.Errorf("nats publish: %w", err)
		}
		return struct{}{}, nil
	}

	if q.breaker == nil {
		_, err := publish(ctx)
		return err
	}
	if _, ok := q.breaker.Execute(ctx, publish, retryableNATSError); !ok {
		return domain.WrapError(domain.ErrDependencyUnavailable, "publish workflow request",
			fmt.Errorf("subject %s unavailable", q.subject))
	}
	return nil
}

// SubscribeWorkflowRequests consumes submissions until ctx is cancelled, then
// drains the subscription so in-flight handlers finish.
func (q *Queue) SubscribeWorkflowRequests(ctx context.Context, handler func(context.Context, domain.ProcessRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "orchestrators", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var req domain.ProcessRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error("workflow_request_decode_failed", "subject", q.subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			slog.Error("workflow_request_handler_failed",
				"correlation_id", req.CorrelationID,
				"document_id", req.DocumentID,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
