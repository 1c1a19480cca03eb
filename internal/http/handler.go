package httpapi

import (
	"context"

	"go.uber.org/zap"

	"venue-telemetry/internal/broadcast"
	"venue-telemetry/internal/models"
)

// SensorIngestor 传感器上报与状态查询
type SensorIngestor interface {
	IngestSensorData(ctx context.Context, payload models.SensorPayload) (string, error)
	GetVenueSensorStatus(ctx context.Context, venueID string) ([]models.SensorStatus, error)
}

// CheckinProcessor 入场状态机
type CheckinProcessor interface {
	ProcessSmartCheckin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error)
	Checkout(ctx context.Context, ticketID, eventID string) (*models.CheckinResult, error)
}

// CapacityReader 容量查询
type CapacityReader interface {
	GetVenueCapacity(ctx context.Context, venueID, zoneID string) ([]*models.CapacityRecord, error)
}

// EnvironmentReader 环境数据查询与导出
type EnvironmentReader interface {
	GetEnvironmentalData(ctx context.Context, venueID string, hours int) ([]*models.EnvironmentalObservation, error)
	ExportEnvironmentalData(ctx context.Context, venueID string, hours int) ([]byte, error)
}

// MaintenanceAnalyzer 维护预警分析
type MaintenanceAnalyzer interface {
	AnalyzeMaintenanceNeeds(ctx context.Context, venueID string) ([]*models.MaintenanceAlert, error)
}

// AnalyticsGenerator 活动分析
type AnalyticsGenerator interface {
	GenerateVenueAnalytics(ctx context.Context, eventID string) (*models.VenueAnalytics, error)
}

// LiveFeed 场馆实时订阅
type LiveFeed interface {
	Subscribe(venueID string, fn broadcast.Subscriber) func()
}

// Handler 聚合各组件的 HTTP 入口
type Handler struct {
	sensors     SensorIngestor
	checkins    CheckinProcessor
	capacity    CapacityReader
	environment EnvironmentReader
	maintenance MaintenanceAnalyzer
	analytics   AnalyticsGenerator
	live        LiveFeed
	sensorKey   string
	logger      *zap.Logger
}

// Deps Handler 依赖
type Deps struct {
	Sensors     SensorIngestor
	Checkins    CheckinProcessor
	Capacity    CapacityReader
	Environment EnvironmentReader
	Maintenance MaintenanceAnalyzer
	Analytics   AnalyticsGenerator
	Live        LiveFeed
	// SensorAPIKey 为空时不校验 x-sensor-key
	SensorAPIKey string
}

// NewHandler 创建 Handler
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		sensors:     deps.Sensors,
		checkins:    deps.Checkins,
		capacity:    deps.Capacity,
		environment: deps.Environment,
		maintenance: deps.Maintenance,
		analytics:   deps.Analytics,
		live:        deps.Live,
		sensorKey:   deps.SensorAPIKey,
		logger:      logger,
	}
}
