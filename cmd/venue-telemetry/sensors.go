package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"venue-telemetry/internal/models"
	"venue-telemetry/internal/service"
)

var sensorsVenue string

var sensorsCmd = &cobra.Command{
	Use:     "sensors",
	Aliases: []string{"ls-sensors"},
	Short:   "List a venue's sensors with battery, last seen and online state",
	RunE:    runSensors,
}

func init() {
	sensorsCmd.Flags().StringVar(&sensorsVenue, "venue", "", "venue id")
	sensorsCmd.Flags().BoolVar(&outputJSON, "json", false, "print sensors as JSON")
	_ = sensorsCmd.MarkFlagRequired("venue")
}

func runSensors(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, s *service.TelemetryService) error {
		statuses, err := s.Pipeline().GetVenueSensorStatus(ctx, sensorsVenue)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(statuses)
		}
		printSensors(statuses)
		return nil
	})
}

func printSensors(statuses []models.SensorStatus) {
	if len(statuses) == 0 {
		fmt.Println("No sensors found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tTYPE\tZONE\tBATTERY\tLAST SEEN\tONLINE")
	fmt.Fprintln(w, "--\t----\t----\t-------\t---------\t------")
	for _, st := range statuses {
		zone, battery, lastSeen := "-", "-", "never"
		if st.Zone != nil {
			zone = *st.Zone
		}
		if st.BatteryLevel != nil {
			battery = fmt.Sprintf("%d%%", *st.BatteryLevel)
		}
		if st.LastSeen != nil {
			lastSeen = st.LastSeen.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", st.ID, st.Type, zone, battery, lastSeen, st.IsOnline)
	}
}
