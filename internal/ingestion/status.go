package ingestion

import (
	"context"
	"fmt"

	"venue-telemetry/internal/models"
)

// GetVenueSensorStatus 场馆传感器在线状态，最近 5 分钟内有上报视为在线
func (p *Pipeline) GetVenueSensorStatus(ctx context.Context, venueID string) ([]models.SensorStatus, error) {
	sensors, zones, err := p.sensors.ListVenueSensors(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get venue sensors: %w", err)
	}

	now := p.now()
	result := make([]models.SensorStatus, 0, len(sensors))
	for i, s := range sensors {
		online := s.LastSeen != nil && now.Sub(*s.LastSeen) < models.SensorOnlineWindow
		result = append(result, models.SensorStatus{
			ID:           s.ID,
			Type:         s.SensorType,
			DeviceID:     s.DeviceID,
			Status:       s.Status,
			BatteryLevel: s.BatteryLevel,
			LastSeen:     s.LastSeen,
			Zone:         zones[i],
			IsOnline:     online,
		})
	}
	return result, nil
}
