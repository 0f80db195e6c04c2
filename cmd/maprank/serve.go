package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/maprank/api"
	"github.com/use-agent/maprank/api/handler"
	"github.com/use-agent/maprank/jobs"
	"github.com/use-agent/maprank/sink"
)

var serveShutdownTimeout time.Duration

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the rank API. Lookups and batches run on the configured browser;
batch jobs are kept in memory and expire after the configured TTL.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCommand.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 5*time.Second, "Time allowed for in-flight requests and batches to stop")
	rootCmd.AddCommand(serveCommand)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stdout, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	slog.Info("maprank starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Batch.MaxConcurrent,
	)

	// ── 5. Completion sinks ─────────────────────────────────────────
	notifier := &sink.Notifier{Webhook: sink.NewWebhook(a.metrics)}
	if len(cfg.Kafka.Brokers) > 0 {
		notifier.Kafka = sink.NewKafkaPublisher(cfg.Kafka, a.metrics)
		defer notifier.Kafka.Close()
		slog.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ── 6. Job store + service ──────────────────────────────────────
	store := jobs.NewStore(cfg.Batch.MaxJobs, cfg.Batch.JobTTL)
	defer store.Close()

	svc := handler.NewService(handler.Deps{
		Runner:        a.runner,
		Opener:        a.browser,
		Jobs:          store,
		Notifier:      notifier,
		Driver:        a.browser.Name(),
		MaxConcurrent: cfg.Batch.MaxConcurrent,
		MaxPairs:      cfg.Batch.MaxPairs,
	})

	// ── 7. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(svc, cfg, a.metrics, time.Now())

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	if err := svc.Shutdown(ctx); err != nil {
		slog.Warn("batches still running at shutdown", "error", err)
	}

	// Browser and sinks close via defer.
	slog.Info("maprank stopped")
	return nil
}
