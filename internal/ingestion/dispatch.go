package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

type handlerFunc func(p *Pipeline, ctx context.Context, sensor *models.Sensor, reading models.RawReading, observedAt time.Time) error

type dispatchEntry struct {
	durability models.Durability
	handle     handlerFunc
}

// dispatchTable 读数类型到处理方的映射，未列出的类型不做派生处理
var dispatchTable = map[models.ReadingKind]dispatchEntry{
	models.KindOccupancyCount: {models.BestEffort, (*Pipeline).handleOccupancy},
	models.KindTemperature:    {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindHumidity:       {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindCO2Level:       {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindVOCLevel:       {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindNoiseLevel:     {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindAirPressure:    {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindLightLevel:     {models.BestEffort, (*Pipeline).handleEnvironment},
	models.KindMotionDetected: {models.BestEffort, (*Pipeline).handleHook},
	models.KindBeaconSignal:   {models.BestEffort, (*Pipeline).handleHook},
}

// dispatch 逐条分发读数
// Critical 处理失败时停止后续分发并返回错误，BestEffort 只记录日志
func (p *Pipeline) dispatch(ctx context.Context, sensor *models.Sensor, readings []models.RawReading, observedAt time.Time) error {
	for _, r := range readings {
		entry, ok := dispatchTable[r.Kind()]
		if !ok {
			continue
		}
		if err := entry.handle(p, ctx, sensor, r, observedAt); err != nil {
			if entry.durability == models.Critical {
				return err
			}
			p.logger.Warn("Derived reading handler failed",
				zap.String("sensor_id", sensor.ID),
				zap.String("type", r.Type),
				zap.String("durability", entry.durability.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (p *Pipeline) handleOccupancy(ctx context.Context, sensor *models.Sensor, r models.RawReading, observedAt time.Time) error {
	if p.capacity == nil {
		return nil
	}
	return p.capacity.ApplyOccupancy(ctx, sensor, r.Value, observedAt)
}

func (p *Pipeline) handleEnvironment(ctx context.Context, sensor *models.Sensor, r models.RawReading, observedAt time.Time) error {
	if p.environment == nil {
		return nil
	}
	return p.environment.Record(ctx, sensor, r, observedAt)
}

// handleHook 运动与信标读数只计数
func (p *Pipeline) handleHook(_ context.Context, sensor *models.Sensor, r models.RawReading, _ time.Time) error {
	p.metrics.HookEvent(r.Type)
	p.logger.Debug("Presence signal received",
		zap.String("sensor_id", sensor.ID),
		zap.String("type", r.Type),
		zap.Float64("value", r.Value),
	)
	return nil
}
