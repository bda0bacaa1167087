// Command ergate runs a worker or publisher process against a
// queue/state-store backend selected by configuration.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ergate "github.com/ergatehq/ergate"
	"github.com/ergatehq/ergate/internal/config"
	"github.com/ergatehq/ergate/internal/observability"
	"github.com/ergatehq/ergate/publisher"
	memorystore "github.com/ergatehq/ergate/store/memory"
	redisstore "github.com/ergatehq/ergate/store/redis"
	sqlitestore "github.com/ergatehq/ergate/store/sqlite"
	"github.com/ergatehq/ergate/worker"
)

// Version is the ergate release embedded in logs and the metrics
// server's health endpoint.
const Version = "0.1.0"

func main() {
	if len(os.Args) < 3 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: ergate run worker|publisher")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("ergate")
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "ergate",
			ServiceVersion: Version,
			Environment:    cfg.Observability.Sentry.Environment,
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down tracer provider", "error", err)
			}
		}()
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	registry := ergate.NewWorkflowRegistry()
	if err := registerWorkflows(registry); err != nil {
		logger.Error("failed to register workflows", "error", err)
		os.Exit(1)
	}

	store, queue, closeStore, err := buildBackends(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize backends", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	switch os.Args[2] {
	case "worker":
		runWorker(ctx, registry, store, queue, metrics, logger)
	case "publisher":
		runPublisher(ctx, store, queue, cfg.Publisher, metrics, logger)
	default:
		fmt.Fprintln(os.Stderr, "usage: ergate run worker|publisher")
		os.Exit(2)
	}
}

// buildBackends constructs the Queue and StateStore named by cfg. Queue
// and StateStore backends are chosen independently; a memory Store
// satisfies both roles from a single value, so it is only opened once
// and shared when both sides select "memory".
func buildBackends(ctx context.Context, cfg *config.Config) (ergate.StateStore, ergate.Queue, func(), error) {
	if cfg.Queue.Backend == "memory" && cfg.StateStore.Backend == "memory" {
		s := memorystore.New(256)
		return s, s, func() {}, nil
	}

	var store ergate.StateStore
	var closeStore func()
	switch cfg.StateStore.Backend {
	case "memory":
		s := memorystore.New(256)
		store, closeStore = s, func() {}
	case "sqlite":
		s, err := sqlitestore.Open(cfg.StateStore.SQLite.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite state store: %w", err)
		}
		store, closeStore = s, func() { _ = s.Close() }
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.StateStore.Redis.Addr,
			Password: cfg.StateStore.Redis.Password,
			DB:       cfg.StateStore.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to redis state store: %w", err)
		}
		store, closeStore = s, func() { _ = s.Close() }
	default:
		return nil, nil, nil, fmt.Errorf("unknown state store backend: %s", cfg.StateStore.Backend)
	}

	var queue ergate.Queue
	closeQueue := func() {}
	switch cfg.Queue.Backend {
	case "memory":
		queue = memorystore.New(256)
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		if err != nil {
			closeStore()
			return nil, nil, nil, fmt.Errorf("connecting to redis queue: %w", err)
		}
		queue, closeQueue = s, func() { _ = s.Close() }
	default:
		closeStore()
		return nil, nil, nil, fmt.Errorf("unknown queue backend: %s", cfg.Queue.Backend)
	}

	return store, queue, func() { closeQueue(); closeStore() }, nil
}

// workerMetrics adapts observability.MetricsCollector to worker.Metrics.
type workerMetrics struct{ c *observability.MetricsCollector }

func (m workerMetrics) StepDispatched(workflow, step string) {
	m.c.RecordStepDispatch(workflow, step, 0)
}
func (m workerMetrics) JobTerminal(workflow string, status ergate.JobStatus) {
	m.c.RecordJobTerminal(workflow, string(status))
}
func (m workerMetrics) JobRequeued(workflow string) {
	m.c.RecordJobRequeued(workflow, 0)
}

// publisherMetrics adapts observability.MetricsCollector to
// publisher.Metrics.
type publisherMetrics struct{ c *observability.MetricsCollector }

func (m publisherMetrics) BatchPublished(size int) {
	m.c.RecordPublishBatch(size, 0)
}

func runWorker(ctx context.Context, registry *ergate.WorkflowRegistry, store ergate.StateStore, queue ergate.Queue, metrics *observability.MetricsCollector, logger *observability.Logger) {
	var wm worker.Metrics
	if metrics != nil {
		wm = workerMetrics{metrics}
	}

	hooks := worker.NewErrorHookHandler(logger.Underlying())
	worker.RegisterErrorHook(hooks, func(job ergate.Job, err error) {
		logger.Warn("job failed", "job_id", job.ID, "workflow", job.WorkflowName, "step", job.StepName, "error", err)
	})

	runner := worker.NewJobRunner(registry, queue, store, hooks, nil, wm, logger.Underlying())
	w := worker.NewWorker(runner, nil, logger.Underlying())

	logger.Info("worker starting", "workflows", registry.Names())
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func runPublisher(ctx context.Context, store ergate.StateStore, queue ergate.Queue, cfg config.PublisherConfig, metrics *observability.MetricsCollector, logger *observability.Logger) {
	var pm publisher.Metrics
	if metrics != nil {
		pm = publisherMetrics{metrics}
	}

	p := publisher.New(store, queue, publisher.Config{PollInterval: cfg.PollInterval}, pm, logger.Underlying())

	logger.Info("publisher starting", "poll_interval", cfg.PollInterval)
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("publisher exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("publisher stopped")
}

// startMetricsServer serves the Prometheus metrics endpoint on its own
// port until the process exits.
func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("starting metrics server", "addr", addr, "path", cfg.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
