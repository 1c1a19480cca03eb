package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logpkg "venue-telemetry/common/logger"
	"venue-telemetry/internal/config"
)

const serviceName = "venue-telemetry"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Venue sensor telemetry and occupancy service",
	Long: `Ingests venue sensor readings over HTTP and MQTT, keeps zone capacity and
environmental history up to date, tracks attendee check-ins and streams live
venue updates to dashboards.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, analyzeCmd, analyticsCmd, sensorsCmd)
}

// setup 加载配置并初始化 Logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
