package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
)

var (
	// ErrEmptyReadings 上报中没有读数
	ErrEmptyReadings = errors.New("no readings in payload")
	// ErrSensorNotFound 传感器未注册
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrSensorInactive 传感器未启用
	ErrSensorInactive = errors.New("sensor not active")
)

// SensorStore 传感器注册表
type SensorStore interface {
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
	GetSensorByDeviceID(ctx context.Context, deviceID string) (*models.Sensor, error)
	TouchSensor(ctx context.Context, sensorID string, seenAt time.Time, batteryLevel *int) error
	ListVenueSensors(ctx context.Context, venueID string) ([]*models.Sensor, []*string, error)
}

// ReadingStore 原始读数持久化
type ReadingStore interface {
	InsertReadings(ctx context.Context, readings []models.Reading) error
}

// CapacityUpdater 占用读数的处理方
type CapacityUpdater interface {
	ApplyOccupancy(ctx context.Context, sensor *models.Sensor, occupancy float64, observedAt time.Time) error
}

// EnvironmentRecorder 环境读数的处理方
type EnvironmentRecorder interface {
	Record(ctx context.Context, sensor *models.Sensor, reading models.RawReading, recordedAt time.Time) error
}

// Broadcaster 传感器上报推送
type Broadcaster interface {
	BroadcastSensorUpdate(ctx context.Context, venueID string, payload models.SensorPayload)
}

// Config 管道参数
type Config struct {
	BatchSize int
	Timeout   time.Duration
}

// Pipeline 传感器数据接入管道
type Pipeline struct {
	sensors     SensorStore
	readings    ReadingStore
	capacity    CapacityUpdater
	environment EnvironmentRecorder
	broadcaster Broadcaster
	cfg         Config
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewPipeline 创建接入管道
func NewPipeline(
	sensors SensorStore,
	readings ReadingStore,
	capacity CapacityUpdater,
	environment EnvironmentRecorder,
	broadcaster Broadcaster,
	cfg Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{
		sensors:     sensors,
		readings:    readings,
		capacity:    capacity,
		environment: environment,
		broadcaster: broadcaster,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

// ProcessSensorData 处理一次传感器上报
//
// 读数按批次顺序写入，任一批次失败即返回错误；只要有批次写入成功，
// 传感器活跃时间都会更新一次。全部写入后按读数类型分发，最后推送一次上报事件。
func (p *Pipeline) ProcessSensorData(ctx context.Context, payload models.SensorPayload) error {
	_, err := p.IngestSensorData(ctx, payload)
	return err
}

// IngestSensorData 同 ProcessSensorData，额外返回解析后的传感器主键
//
// 上报中的 sensorId 可以是设备号或传感器主键。
func (p *Pipeline) IngestSensorData(ctx context.Context, payload models.SensorPayload) (string, error) {
	start := time.Now()
	defer func() { p.metrics.ObserveIngest(time.Since(start)) }()

	if len(payload.Readings) == 0 {
		p.metrics.IngestFailed("empty")
		return "", ErrEmptyReadings
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	sensor, err := p.resolveSensor(ctx, payload.SensorID)
	if err != nil {
		p.metrics.IngestFailed("lookup")
		return "", fmt.Errorf("failed to resolve sensor: %w", err)
	}
	if sensor == nil {
		p.metrics.IngestFailed("unknown_sensor")
		return "", ErrSensorNotFound
	}
	if sensor.Status != models.SensorStatusActive {
		p.metrics.IngestFailed("inactive_sensor")
		return "", ErrSensorInactive
	}

	observedAt := p.now()
	if payload.Timestamp != nil {
		observedAt = *payload.Timestamp
	}

	rows, err := toRows(sensor.ID, payload.Readings, observedAt)
	if err != nil {
		p.metrics.IngestFailed("payload")
		return "", err
	}

	if err := p.persist(ctx, rows, payload.BatteryLevel); err != nil {
		p.metrics.IngestFailed("persist")
		return "", err
	}

	if err := p.dispatch(ctx, sensor, payload.Readings, observedAt); err != nil {
		p.metrics.IngestFailed("dispatch")
		return "", err
	}

	if p.broadcaster != nil {
		payload.SensorID = sensor.ID
		p.broadcaster.BroadcastSensorUpdate(ctx, sensor.VenueID, payload)
	}

	p.logger.Debug("Processed sensor data",
		zap.String("sensor_id", sensor.ID),
		zap.String("venue_id", sensor.VenueID),
		zap.Int("readings", len(payload.Readings)),
	)
	return sensor.ID, nil
}

// resolveSensor 先按设备号匹配启用中的传感器，未命中再按主键查找
func (p *Pipeline) resolveSensor(ctx context.Context, ref string) (*models.Sensor, error) {
	sensor, err := p.sensors.GetSensorByDeviceID(ctx, ref)
	if err != nil || sensor != nil {
		return sensor, err
	}
	return p.sensors.GetSensor(ctx, ref)
}

// persist 分批写入读数并更新传感器活跃状态
func (p *Pipeline) persist(ctx context.Context, rows []models.Reading, batteryLevel *int) error {
	var firstErr error
	batches := 0
	for start := 0; start < len(rows); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := p.readings.InsertReadings(ctx, rows[start:end]); err != nil {
			firstErr = fmt.Errorf("failed to store readings batch %d: %w", batches+1, err)
			break
		}
		batches++
		for _, r := range rows[start:end] {
			p.metrics.ReadingPersisted(r.ReadingType, 1)
		}
	}

	if batches > 0 {
		// last_seen 取接收时刻，读数行才使用上报时间戳
		sensorID := rows[0].SensorID
		if err := p.sensors.TouchSensor(ctx, sensorID, p.now(), batteryLevel); err != nil {
			p.logger.Warn("Failed to update sensor liveness",
				zap.String("sensor_id", sensorID),
				zap.Error(err),
			)
		}
	}
	return firstErr
}

func toRows(sensorID string, readings []models.RawReading, observedAt time.Time) ([]models.Reading, error) {
	rows := make([]models.Reading, 0, len(readings))
	for i, r := range readings {
		if r.Type == "" {
			return nil, &models.PayloadError{Message: fmt.Sprintf("reading %d has no type", i)}
		}
		quality := r.QualityScore()
		if quality < 0 || quality > 1 {
			return nil, &models.PayloadError{Message: fmt.Sprintf("reading %d quality %v out of range [0,1]", i, quality)}
		}
		var metadata json.RawMessage
		if len(r.Metadata) > 0 {
			raw, err := json.Marshal(r.Metadata)
			if err != nil {
				return nil, &models.PayloadError{Message: fmt.Sprintf("reading %d metadata: %v", i, err)}
			}
			metadata = raw
		}
		rows = append(rows, models.Reading{
			SensorID:         sensorID,
			ReadingType:      r.Type,
			Value:            r.Value,
			Unit:             r.Unit,
			QualityScore:     quality,
			Metadata:         metadata,
			ReadingTimestamp: observedAt,
		})
	}
	return rows, nil
}
