package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
)

var (
	// ErrSensorNotFound 传感器不存在
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrNoZone 传感器未绑定区域，无法维护区域容量
	ErrNoZone = errors.New("sensor has no zone")
)

// SensorLookup 传感器与区域查询
type SensorLookup interface {
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
	GetZone(ctx context.Context, zoneID string) (*models.Zone, error)
}

// Store 容量持久化
type Store interface {
	UpsertCapacity(ctx context.Context, rec *models.CapacityRecord) (bool, error)
	ListVenueCapacity(ctx context.Context, venueID, zoneID string) ([]*models.CapacityRecord, error)
}

// Broadcaster 容量变化推送
type Broadcaster interface {
	BroadcastCapacityUpdate(ctx context.Context, venueID, zoneID string, update models.CapacityUpdate)
}

// Engine 区域容量状态引擎
type Engine struct {
	sensors            SensorLookup
	store              Store
	cache              *Cache
	mirror             *Mirror
	broadcaster        Broadcaster
	defaultMaxCapacity int
	logger             *zap.Logger
	metrics            *metrics.Metrics
}

// NewEngine 创建容量引擎，mirror 可为 nil
func NewEngine(
	sensors SensorLookup,
	store Store,
	mirror *Mirror,
	broadcaster Broadcaster,
	defaultMaxCapacity int,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Engine {
	if defaultMaxCapacity <= 0 {
		defaultMaxCapacity = 100
	}
	return &Engine{
		sensors:            sensors,
		store:              store,
		cache:              NewCache(),
		mirror:             mirror,
		broadcaster:        broadcaster,
		defaultMaxCapacity: defaultMaxCapacity,
		logger:             logger,
		metrics:            m,
	}
}

// Cache 进程内容量镜像
func (e *Engine) Cache() *Cache {
	return e.cache
}

// UpdateCapacityFromOccupancy 根据占用读数更新区域容量
func (e *Engine) UpdateCapacityFromOccupancy(ctx context.Context, sensorID string, occupancy float64, observedAt time.Time) error {
	sensor, err := e.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return fmt.Errorf("failed to resolve sensor: %w", err)
	}
	if sensor == nil {
		return ErrSensorNotFound
	}
	return e.ApplyOccupancy(ctx, sensor, occupancy, observedAt)
}

// ApplyOccupancy 使用已解析的传感器更新区域容量
// 持久层拒绝的旧写入不算错误，也不推送
func (e *Engine) ApplyOccupancy(ctx context.Context, sensor *models.Sensor, occupancy float64, observedAt time.Time) error {
	if sensor.ZoneID == nil || *sensor.ZoneID == "" {
		return ErrNoZone
	}
	zoneID := *sensor.ZoneID

	maxCapacity, err := e.resolveMaxCapacity(ctx, sensor)
	if err != nil {
		return err
	}

	count := int(math.Round(occupancy))
	rec := models.CapacityRecord{
		VenueID:          sensor.VenueID,
		ZoneID:           zoneID,
		CurrentOccupancy: count,
		MaxCapacity:      maxCapacity,
		UtilizationRate:  models.UtilizationRate(count, maxCapacity),
		LastUpdated:      observedAt,
		UpdatedBySensor:  sensor.ID,
	}

	applied, err := e.store.UpsertCapacity(ctx, &rec)
	if err != nil {
		e.metrics.CapacityWrite("error")
		return fmt.Errorf("failed to update capacity: %w", err)
	}
	if !applied {
		e.metrics.CapacityWrite("stale")
		e.logger.Debug("Ignored out-of-order capacity update",
			zap.String("venue_id", rec.VenueID),
			zap.String("zone_id", zoneID),
			zap.Time("observed_at", observedAt),
		)
		return nil
	}
	e.metrics.CapacityWrite("applied")

	e.cache.Put(rec)
	if e.mirror != nil {
		if err := e.mirror.Store(ctx, rec); err != nil {
			e.logger.Warn("Failed to mirror capacity", zap.String("zone_id", zoneID), zap.Error(err))
		}
	}

	if e.broadcaster != nil {
		e.broadcaster.BroadcastCapacityUpdate(ctx, rec.VenueID, zoneID, models.CapacityUpdate{
			Occupancy:   rec.CurrentOccupancy,
			Capacity:    rec.MaxCapacity,
			Utilization: rec.UtilizationRate,
		})
	}
	return nil
}

// resolveMaxCapacity 区域容量 > 传感器配置 maxCapacity > 默认值
func (e *Engine) resolveMaxCapacity(ctx context.Context, sensor *models.Sensor) (int, error) {
	zone, err := e.sensors.GetZone(ctx, *sensor.ZoneID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve zone: %w", err)
	}
	if zone != nil && zone.Capacity != nil && *zone.Capacity > 0 {
		return *zone.Capacity, nil
	}
	if c := sensor.ParsedConfiguration().MaxCapacity; c != nil && *c > 0 {
		return *c, nil
	}
	return e.defaultMaxCapacity, nil
}

// GetVenueCapacity 从持久层读取场馆容量
func (e *Engine) GetVenueCapacity(ctx context.Context, venueID, zoneID string) ([]*models.CapacityRecord, error) {
	records, err := e.store.ListVenueCapacity(ctx, venueID, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to get venue capacity: %w", err)
	}
	return records, nil
}

// GetCachedCapacity 优先读取进程内缓存，其次 Redis 镜像
func (e *Engine) GetCachedCapacity(ctx context.Context, venueID, zoneID string) (*models.CapacityRecord, error) {
	if rec, ok := e.cache.Get(venueID, zoneID); ok {
		return &rec, nil
	}
	if e.mirror == nil {
		return nil, ErrCacheMiss
	}
	return e.mirror.Load(ctx, venueID, zoneID)
}
