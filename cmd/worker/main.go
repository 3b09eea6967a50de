package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grantsignal/grantsignal/internal/bootstrap"
	"github.com/grantsignal/grantsignal/internal/config"
	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/infrastructure/resilience"
	"github.com/grantsignal/grantsignal/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(app, workerMetrics, cfg.WorkerMetricsPort)
	defer shutdownMetricsServer(app, metricsServer)

	// One Executor per process: the whole pipeline job is the retried
	// unit, so a malformed document burns its budget once and stops.
	jobPolicy := resilience.DefaultConfig()
	jobPolicy.RetryMaxAttempts = cfg.JobMaxAttempts
	executor := resilience.NewExecutor(jobPolicy)
	jobTimeout := time.Duration(cfg.JobTimeoutSeconds) * time.Second

	app.Logger.Info("worker_subscribed", "subject", cfg.UploadSubject)
	err = app.Queue.SubscribeDocumentUploaded(ctx, func(handlerCtx context.Context, evt domain.UploadedEvent) error {
		workerMetrics.StartJob()
		workerMetrics.ObserveQueueLag(serviceName, time.Since(evt.EnqueuedAt))
		started := time.Now()

		jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()

		var report domain.PipelineReport
		jobErr := executor.Execute(jobCtx, "pipeline.process", func(callCtx context.Context) error {
			var processErr error
			report, processErr = app.ProcessUC.Process(callCtx, evt)
			return processErr
		}, classifyJobError)

		workerMetrics.FinishJob(serviceName, time.Since(started), jobErr)
		for _, stage := range []struct {
			name string
			skip *domain.StageSkip
		}{
			{"vectorize", report.Vectorize.Skip},
			{"extract_commitments", report.Extraction.Skip},
			{"notify", report.Notify.Skip},
		} {
			outcome := ""
			if stage.skip != nil {
				outcome = string(stage.skip.Reason)
			}
			workerMetrics.ObserveStage(serviceName, stage.name, outcome)
		}

		if jobErr != nil {
			app.Logger.Error("pipeline_job_failed",
				"document_id", evt.DocumentID,
				"organization_id", evt.OrganizationID,
				"error", jobErr,
			)
		}
		return jobErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// classifyJobError maps job failures onto the retry budget. Fetch,
// parse and persist failures all stay retryable: a re-run that already
// parsed successfully reuses the cached parse step, so retrying a parse
// failure costs nothing when the failure was transient. Only input
// errors and events for documents that no longer exist fail fast.
func classifyJobError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrDocumentNotFound):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
}

func startMetricsServer(app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		app.Logger.Info("worker_metrics_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	return server
}

func shutdownMetricsServer(app *bootstrap.App, server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("worker_metrics_shutdown_error", "error", err)
	}
}
