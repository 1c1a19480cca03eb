package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
)

// Store 维护告警持久化
type Store interface {
	ListEquipmentReadings(ctx context.Context, venueID string, since time.Time) ([]*models.EquipmentReading, error)
	RecentAlertExists(ctx context.Context, equipmentID, title, alertType string, since time.Time) (bool, error)
	InsertAlerts(ctx context.Context, alerts []*models.MaintenanceAlert) error
}

// Advisor 基于近期读数的设备维护分析
type Advisor struct {
	store       Store
	lookback    time.Duration
	dedupWindow time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewAdvisor 创建维护分析器
// dedupWindow 为 0 时不检查历史告警
func NewAdvisor(store Store, lookback, dedupWindow time.Duration, logger *zap.Logger, m *metrics.Metrics) *Advisor {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Advisor{
		store:       store,
		lookback:    lookback,
		dedupWindow: dedupWindow,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

type dedupKey struct {
	equipmentID string
	readingType string
	alertType   string
}

// AnalyzeMaintenanceNeeds 扫描场馆近期读数并生成维护告警
// 告警写入失败只记录日志，仍返回生成的告警
func (a *Advisor) AnalyzeMaintenanceNeeds(ctx context.Context, venueID string) ([]*models.MaintenanceAlert, error) {
	now := a.now()
	readings, err := a.store.ListEquipmentReadings(ctx, venueID, now.Add(-a.lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent readings: %w", err)
	}

	seen := make(map[dedupKey]struct{})
	alerts := make([]*models.MaintenanceAlert, 0)
	for _, r := range readings {
		alert := DetectAnomaly(r)
		if alert == nil {
			continue
		}

		key := dedupKey{alert.EquipmentID, r.ReadingType, alert.AlertType}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if a.dedupWindow > 0 {
			exists, err := a.store.RecentAlertExists(ctx, alert.EquipmentID, alert.Title, alert.AlertType, now.Add(-a.dedupWindow))
			if err != nil {
				return nil, fmt.Errorf("failed to check recent alerts: %w", err)
			}
			if exists {
				continue
			}
		}

		alert.ID = uuid.New().String()
		alert.CreatedAt = now
		alerts = append(alerts, alert)
	}

	if len(alerts) == 0 {
		return alerts, nil
	}

	if err := a.store.InsertAlerts(ctx, alerts); err != nil {
		a.logger.Error("Failed to insert maintenance alerts",
			zap.String("venue_id", venueID),
			zap.Int("count", len(alerts)),
			zap.Error(err),
		)
		return alerts, nil
	}

	for _, alert := range alerts {
		a.metrics.AlertCreated(alert.AlertType)
	}
	a.logger.Info("Maintenance alerts created",
		zap.String("venue_id", venueID),
		zap.Int("count", len(alerts)),
	)
	return alerts, nil
}

// DetectAnomaly 读数超出正常区间时返回告警（未分配 ID）
func DetectAnomaly(r *models.EquipmentReading) *models.MaintenanceAlert {
	rng, ok := NormalRange(r.ReadingType)
	if !ok || rng.Contains(r.Value) {
		return nil
	}

	severity := models.SeverityMedium
	if r.Value >= rng.Max*highSeverityFactor {
		severity = models.SeverityHigh
	}
	alertType := models.AlertTypePreventive
	if r.Value >= rng.Max*emergencyFactor {
		alertType = models.AlertTypeEmergency
	}

	snapshot, _ := json.Marshal(models.AlertSnapshot{
		ReadingType: r.ReadingType,
		Value:       r.Value,
		Timestamp:   r.ReadingTimestamp,
	})

	eq := r.Equipment
	return &models.MaintenanceAlert{
		EquipmentID:       eq.ID,
		VenueID:           eq.VenueID,
		AlertType:         alertType,
		Severity:          severity,
		Title:             fmt.Sprintf("%s %s anomaly", eq.EquipmentType, r.ReadingType),
		Description:       fmt.Sprintf("%s reading of %g is outside normal range (%g-%g)", r.ReadingType, r.Value, rng.Min, rng.Max),
		SensorData:        snapshot,
		RecommendedAction: fmt.Sprintf("Inspect %s and perform maintenance if needed", eq.EquipmentType),
	}
}
