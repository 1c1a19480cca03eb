package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venue-telemetry/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, ingress consumers and real-time channels",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting venue-telemetry service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("input_stream", cfg.Ingestion.Stream),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		zap.Bool("realtime_enabled", cfg.Realtime.Enabled),
		zap.String("tickets_backend", cfg.Tickets.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建服务
	telemetryService, err := service.NewTelemetryService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create telemetry service", zap.Error(err))
		return err
	}

	// 在 goroutine 中启动服务
	errCh := make(chan error, 1)
	go func() {
		errCh <- telemetryService.Start(ctx)
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Service exited", zap.Error(runErr))
		}
	}

	// 优雅关闭
	cancel()
	if err := telemetryService.Stop(context.Background()); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
	return runErr
}
