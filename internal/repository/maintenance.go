package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// MaintenanceRepository 维护告警仓库（maintenance_alerts / venue_equipment）
type MaintenanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMaintenanceRepository 创建维护告警仓库
func NewMaintenanceRepository(db *sql.DB, logger *zap.Logger) *MaintenanceRepository {
	return &MaintenanceRepository{
		db:     db,
		logger: logger,
	}
}

// ListEquipmentReadings 查询场馆某时间点之后的读数及其关联设备
func (r *MaintenanceRepository) ListEquipmentReadings(ctx context.Context, venueID string, since time.Time) ([]*models.EquipmentReading, error) {
	query := `
		SELECT r.id, r.sensor_id, r.reading_type, r.value, r.reading_timestamp,
		       e.id, e.venue_id, e.equipment_type, e.status
		FROM sensor_readings r
		JOIN iot_sensors s ON s.id = r.sensor_id
		JOIN venue_equipment e ON e.sensor_id = s.id
		WHERE s.venue_id = $1 AND r.reading_timestamp >= $2
		ORDER BY r.reading_timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, venueID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query equipment readings: %w", err)
	}
	defer rows.Close()

	var result []*models.EquipmentReading
	for rows.Next() {
		er := &models.EquipmentReading{}
		if err := rows.Scan(
			&er.ReadingID,
			&er.SensorID,
			&er.ReadingType,
			&er.Value,
			&er.ReadingTimestamp,
			&er.Equipment.ID,
			&er.Equipment.VenueID,
			&er.Equipment.EquipmentType,
			&er.Equipment.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan equipment reading: %w", err)
		}
		result = append(result, er)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate equipment readings: %w", err)
	}
	return result, nil
}

// RecentAlertExists 时间窗口内是否已有相同设备、标题、类型的告警
func (r *MaintenanceRepository) RecentAlertExists(ctx context.Context, equipmentID, title, alertType string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM maintenance_alerts
			WHERE equipment_id = $1 AND title = $2 AND alert_type = $3 AND created_at >= $4
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, equipmentID, title, alertType, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return exists, nil
}

const alertColumns = 9

// InsertAlerts 批量写入告警
func (r *MaintenanceRepository) InsertAlerts(ctx context.Context, alerts []*models.MaintenanceAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO maintenance_alerts (id, equipment_id, venue_id, alert_type, severity, title, description, sensor_data, recommended_action) VALUES `)

	args := make([]interface{}, 0, len(alerts)*alertColumns)
	for i, a := range alerts {
		if i > 0 {
			sb.WriteString(", ")
		}
		placeholders := make([]string, alertColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*alertColumns+j+1)
		}
		sb.WriteString("(" + strings.Join(placeholders, ", ") + ")")
		args = append(args,
			a.ID,
			a.EquipmentID,
			a.VenueID,
			a.AlertType,
			a.Severity,
			a.Title,
			a.Description,
			jsonOrEmpty(a.SensorData),
			a.RecommendedAction,
		)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert maintenance alerts: %w", err)
	}
	return nil
}
