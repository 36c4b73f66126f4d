package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agentrace/arena/internal/adapters/executor"
	"github.com/agentrace/arena/internal/adapters/http/api"
	"github.com/agentrace/arena/internal/adapters/llm"
	app "github.com/agentrace/arena/internal/app"
	"github.com/agentrace/arena/internal/config"
	"github.com/agentrace/arena/internal/domain/race"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Pick up OPENAI_API_KEY and friends from a local .env when present
	_ = godotenv.Load()

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Shared LLM client for task generation and judging
	client := llm.NewClient(
		llm.WithBaseURL(cfg.LLMBaseURL),
		llm.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		llm.WithTimeout(time.Duration(cfg.LLMTimeoutMS)*time.Millisecond),
	)

	// Scripted executor options
	execOpts := []executor.Option{
		executor.WithLatencyRange(
			time.Duration(cfg.ExecutorMinLatencyMS)*time.Millisecond,
			time.Duration(cfg.ExecutorMaxLatencyMS)*time.Millisecond,
		),
	}
	if cfg.AgentResult != "" {
		execOpts = append(execOpts, executor.WithResult(cfg.AgentResult))
	}

	// Create and start the service with configuration options
	svc := app.New(
		app.WithLogger(loggerInstance),
		app.WithTaskGenerator(buildTaskGenerator(cfg, client)),
		app.WithJudge(llm.NewJudge(client, cfg.JudgeModel)),
		app.WithExecutor(executor.NewScripted(execOpts...)),
		app.WithJudgeWorkerCount(cfg.JudgeWorkers),
		app.WithJudgeQueueSize(cfg.JudgeQueueSize),
		app.WithRunQueueSize(cfg.RunQueueSize),
		app.WithStreamBufferCap(cfg.StreamBufferCap),
		app.WithListenerBuffer(cfg.ListenerBuffer),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(ctx),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		// No WriteTimeout: event streams stay open for the life of a run.
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// buildTaskGenerator selects the task source configured for this process.
func buildTaskGenerator(cfg *config.Config, client *llm.Client) race.TaskGenerator {
	if cfg.TaskSource == config.TaskSourceAI {
		return llm.NewTaskGenerator(client, cfg.TaskModel)
	}
	return llm.NewStaticTaskSource()
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the service gauges as a side effect
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
