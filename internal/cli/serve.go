package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/sagaflow/internal/config"
	"github.com/aretw0/sagaflow/internal/telemetry"
	httpAdapter "github.com/aretw0/sagaflow/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the HTTP API, and the inbound event consumer when configured, until ctx is done.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "err", err)
		}
	}()

	stack, err := BuildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	handler, err := httpAdapter.NewHandler(stack.Engine,
		httpAdapter.WithMetrics(stack.Metrics.Handler()),
		httpAdapter.WithStreams(stack.Streams),
		httpAdapter.WithVersion(version),
		httpAdapter.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("sagaflow server listening", "addr", srv.Addr, "types", stack.Engine.SagaTypes())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		stack.Engine.Wait()
		return nil
	})
	if stack.Consumer != nil {
		g.Go(func() error {
			if err := stack.Consumer.Setup(gctx); err != nil {
				return fmt.Errorf("setup consumer group: %w", err)
			}
			logger.Info("consuming domain events", "stream", cfg.Redis.InboundStream, "group", cfg.Redis.ConsumerGroup)
			return stack.Consumer.Run(gctx)
		})
	}
	return g.Wait()
}
