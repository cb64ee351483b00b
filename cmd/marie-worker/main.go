// main package for the marie-worker speech service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/config"
	"github.com/JanetCheng0311/MARIE/internal/handlestore"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
	"github.com/JanetCheng0311/MARIE/internal/objectstore"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
	"github.com/JanetCheng0311/MARIE/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	shutdownTimeout          = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	err := os.MkdirAll(logPath, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run(ctx context.Context) error {
	bootstrapLog, err := setupLogger(os.TempDir(), "marie-worker-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.RequireMiniMax()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return err
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "marie-worker.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	texts, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket, 0)
	if err != nil {
		return err
	}

	clips, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket, 0)
	if err != nil {
		return err
	}

	handleTTL := time.Duration(cfg.NATS.HandleTTLHours) * time.Hour

	handles, err := handlestore.New(jetstreamContext, cfg.NATS.HandleBucket, handleTTL)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	metrics, err := tracing.NewMetrics(registry)
	if err != nil {
		return err
	}

	observer := tracing.Observer(metrics)

	var langfuse *tracing.Langfuse

	if cfg.LangfuseEnabled() {
		var langfuseErr error

		langfuse, langfuseErr = tracing.NewLangfuse(context.Background(), cfg.Langfuse.Host, cfg.Langfuse.PublicKey,
			cfg.Langfuse.SecretKey)
		if langfuseErr != nil {
			return langfuseErr
		}

		observer = tracing.Multi(metrics, tracing.NewLangfuseObserver(langfuse, finalLog))
	}

	client := asyncjob.NewClient(minimax.NewAdapter(cfg.MiniMax.BaseURL, cfg.MiniMax.APIKey),
		config.Timeout(cfg.MiniMax.TimeoutSeconds), finalLog)
	runner := pipeline.NewRunner(client, cfg.TTSPolicy(), finalLog,
		pipeline.WithObserver(observer),
		pipeline.WithHandleStore(handles),
		pipeline.WithFetchAttempts(cfg.Poll.FetchAttempts),
	)
	speaker := pipeline.NewSpeaker(nil, runner, pipeline.SpeechSettings{
		VoiceID:       cfg.MiniMax.VoiceID,
		Model:         cfg.MiniMax.Model,
		LanguageBoost: cfg.MiniMax.LanguageBoost,
	})

	metricsServer := serveMetrics(cfg.Metrics.Addr, registry, finalLog)

	speechWorker := worker.NewNatsWorker(natsConnection, cfg.NATS.SynthesisSubject, texts, clips, speaker, runner,
		finalLog, worker.Options{
			QueueGroup: cfg.NATS.QueueGroup,
			JobTimeout: config.Timeout(cfg.NATS.JobTimeoutSeconds),
			Handles:    handles,
		})

	finalLog.System("MARIE worker initialized. Listening for jobs on subject: %s", cfg.NATS.SynthesisSubject)

	runErr := speechWorker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := metricsServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		finalLog.Warn("Failed to stop metrics server: %v", shutdownErr)
	}

	if langfuse != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), config.Timeout(cfg.Langfuse.TimeoutSeconds))
		langfuse.Flush(flushCtx)
		flushCancel()
	}

	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	finalLog.System("MARIE worker stopped.")

	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		log.Info("Metrics listening on %s", addr)

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error: %v", err)
		}
	}()

	return server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
