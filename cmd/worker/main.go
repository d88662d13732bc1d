package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docflow-orchestrator/internal/bootstrap"
	"github.com/kirillkom/docflow-orchestrator/internal/config"
	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
	"github.com/kirillkom/docflow-orchestrator/internal/core/ports"
	"github.com/kirillkom/docflow-orchestrator/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()

	var processor ports.WorkflowProcessor = app.Orchestrator

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeWorkflowRequests(ctx, func(handlerCtx context.Context, req domain.ProcessRequest) error {
		start := time.Now()
		m.StartWorkflow()

		result := processor.ProcessRequest(handlerCtx, req)
		m.FinishWorkflow("worker", time.Since(start), result.Success)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
