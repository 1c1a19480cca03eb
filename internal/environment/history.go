package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// ErrSensorNotFound 传感器不存在
var ErrSensorNotFound = errors.New("sensor not found")

// Store 环境历史持久化
type Store interface {
	InsertObservation(ctx context.Context, obs *models.EnvironmentalObservation) error
	ListSince(ctx context.Context, venueID string, since time.Time) ([]*models.EnvironmentalObservation, error)
}

// SensorLookup 传感器查询
type SensorLookup interface {
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
}

// History 环境监测历史
type History struct {
	sensors      SensorLookup
	store        Store
	defaultHours int
	now          func() time.Time
	logger       *zap.Logger
}

// NewHistory 创建环境历史
func NewHistory(sensors SensorLookup, store Store, defaultHours int, logger *zap.Logger) *History {
	if defaultHours <= 0 {
		defaultHours = 24
	}
	return &History{
		sensors:      sensors,
		store:        store,
		defaultHours: defaultHours,
		now:          time.Now,
		logger:       logger,
	}
}

// UpdateEnvironmentalData 记录一条环境读数，非环境类型直接忽略
func (h *History) UpdateEnvironmentalData(ctx context.Context, sensorID string, reading models.RawReading, recordedAt time.Time) error {
	if !reading.Kind().IsEnvironmental() {
		return nil
	}
	sensor, err := h.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return fmt.Errorf("failed to resolve sensor: %w", err)
	}
	if sensor == nil {
		return ErrSensorNotFound
	}
	return h.Record(ctx, sensor, reading, recordedAt)
}

// Record 使用已解析的传感器记录环境读数
func (h *History) Record(ctx context.Context, sensor *models.Sensor, reading models.RawReading, recordedAt time.Time) error {
	obs := &models.EnvironmentalObservation{
		VenueID:    sensor.VenueID,
		ZoneID:     sensor.ZoneID,
		SensorID:   sensor.ID,
		RecordedAt: recordedAt,
	}
	if !obs.SetMetric(reading.Kind(), reading.Value) {
		return nil
	}

	if err := h.store.InsertObservation(ctx, obs); err != nil {
		return fmt.Errorf("failed to record environmental data: %w", err)
	}

	h.logger.Debug("Recorded environmental data",
		zap.String("venue_id", sensor.VenueID),
		zap.String("sensor_id", sensor.ID),
		zap.String("type", reading.Type),
		zap.Float64("value", reading.Value),
	)
	return nil
}

// GetEnvironmentalData 查询最近 hours 小时的环境数据，按时间倒序
// hours <= 0 时使用默认窗口
func (h *History) GetEnvironmentalData(ctx context.Context, venueID string, hours int) ([]*models.EnvironmentalObservation, error) {
	if hours <= 0 {
		hours = h.defaultHours
	}
	since := h.now().Add(-time.Duration(hours) * time.Hour)

	data, err := h.store.ListSince(ctx, venueID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get environmental data: %w", err)
	}
	return data, nil
}
