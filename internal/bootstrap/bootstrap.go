package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/docflow-orchestrator/internal/config"
	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/usecase"
	idemredis "github.com/kirillkom/docflow-orchestrator/internal/infrastructure/idempotency/redis"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow-orchestrator/internal/infrastructure/stageclient"
	"github.com/kirillkom/docflow-orchestrator/internal/observability/logging"
	"github.com/kirillkom/docflow-orchestrator/internal/observability/tracing"
)

type App struct {
	Config   config.Config
	Pipeline config.Pipeline

	Queue        *nats.Queue
	Orchestrator *usecase.Orchestrator
	StatusUC     *usecase.StatusQueryUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	var tracingShutdown func()
	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		tracingShutdown = shutdown
	}

	pipeline, err := config.LoadPipeline(cfg.PipelineFile)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	statusRepo := postgres.NewStatusRepository(db)
	if err := statusRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	idemStore := idemredis.NewStore(redisClient, cfg.IdempotencyTTL)

	breakerCfg := resilience.Config{
		MaxRetries:       cfg.MaxRetries,
		BaseDelay:        cfg.RetryBaseDelay,
		MaxDelay:         cfg.RetryMaxDelay,
		FailureThreshold: cfg.BreakerFailureThreshold,
		CoolDown:         cfg.BreakerCoolDown,
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		PublishBreaker: resilience.NewBreaker[struct{}]("nats_publish", breakerCfg),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	endpoints := make(map[domain.StageKey]stageclient.Endpoint, len(pipeline.Stages))
	for name, sc := range pipeline.Stages {
		endpoints[domain.StageKey(name)] = stageclient.Endpoint{
			URL:     sc.URL,
			Timeout: time.Duration(sc.Timeout),
		}
	}
	invoker := stageclient.New(endpoints)

	retention := time.Duration(cfg.StatusRetentionDays) * 24 * time.Hour
	tracker := usecase.NewStatusTracker(statusRepo, retention, pipeline.Activities())
	orchestrator := usecase.NewOrchestrator(
		idemStore,
		tracker,
		invoker,
		usecase.NewStageBreakers(breakerCfg),
		cfg.WorkflowTimeout,
	)
	statusUC := usecase.NewStatusQueryUseCase(statusRepo)

	return &App{
		Config:       cfg,
		Pipeline:     pipeline,
		Queue:        queue,
		Orchestrator: orchestrator,
		StatusUC:     statusUC,

		closeFn: func() {
			queue.Close()
			_ = redisClient.Close()
			_ = db.Close()
			if tracingShutdown != nil {
				tracingShutdown()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
