package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
	"venue-telemetry/internal/service"
)

var (
	analyzeVenue string
	analyticsID  string
	outputJSON   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a maintenance scan for one venue and print the new alerts",
	RunE:  runAnalyze,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Generate and store the analytics row for one event",
	RunE:  runAnalytics,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeVenue, "venue", "", "venue id to scan")
	analyzeCmd.Flags().BoolVar(&outputJSON, "json", false, "print alerts as JSON")
	_ = analyzeCmd.MarkFlagRequired("venue")

	analyticsCmd.Flags().StringVar(&analyticsID, "event", "", "event id")
	_ = analyticsCmd.MarkFlagRequired("event")
}

// withService 创建服务执行一次性任务，不启动 HTTP 与消费者
func withService(fn func(ctx context.Context, s *service.TelemetryService) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	s, err := service.NewTelemetryService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create telemetry service", zap.Error(err))
		return err
	}
	defer s.Stop(ctx)

	return fn(ctx, s)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, s *service.TelemetryService) error {
		alerts, err := s.Advisor().AnalyzeMaintenanceNeeds(ctx, analyzeVenue)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(alerts)
		}
		printAlerts(alerts)
		return nil
	})
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, s *service.TelemetryService) error {
		result, err := s.Analytics().GenerateVenueAnalytics(ctx, analyticsID)
		if err != nil {
			return err
		}
		return printJSON(result)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAlerts(alerts []*models.MaintenanceAlert) {
	if len(alerts) == 0 {
		fmt.Println("No maintenance alerts.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "EQUIPMENT\tTYPE\tSEVERITY\tTITLE")
	fmt.Fprintln(w, "---------\t----\t--------\t-----")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.EquipmentID, a.AlertType, a.Severity, a.Title)
	}
}
