package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// SensorRepository 传感器注册表（iot_sensors / venue_zones）
type SensorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorRepository 创建传感器仓库
func NewSensorRepository(db *sql.DB, logger *zap.Logger) *SensorRepository {
	return &SensorRepository{
		db:     db,
		logger: logger,
	}
}

const sensorColumns = `
		SELECT id, device_id, venue_id, zone_id, sensor_type, status,
		       last_seen, battery_level, COALESCE(configuration, '{}'::jsonb)
		FROM iot_sensors
`

// GetSensor 按 ID 查询传感器，不存在时返回 nil, nil
func (r *SensorRepository) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	return r.querySensor(ctx, sensorColumns+`		WHERE id = $1`, sensorID)
}

// GetSensorByDeviceID 按设备号查询启用中的传感器，不存在时返回 nil, nil
func (r *SensorRepository) GetSensorByDeviceID(ctx context.Context, deviceID string) (*models.Sensor, error) {
	return r.querySensor(ctx, sensorColumns+`		WHERE device_id = $1 AND status = 'active'`, deviceID)
}

func (r *SensorRepository) querySensor(ctx context.Context, query string, arg string) (*models.Sensor, error) {
	s := &models.Sensor{}
	var zoneID sql.NullString
	var lastSeen sql.NullTime
	var battery sql.NullInt64
	var configuration []byte

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID,
		&s.DeviceID,
		&s.VenueID,
		&zoneID,
		&s.SensorType,
		&s.Status,
		&lastSeen,
		&battery,
		&configuration,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sensor: %w", err)
	}

	if zoneID.Valid {
		s.ZoneID = &zoneID.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeen = &t
	}
	if battery.Valid {
		b := int(battery.Int64)
		s.BatteryLevel = &b
	}
	s.Configuration = configuration
	return s, nil
}

// TouchSensor 更新传感器活跃时间与电量
// batteryLevel 为空时保留原值
func (r *SensorRepository) TouchSensor(ctx context.Context, sensorID string, seenAt time.Time, batteryLevel *int) error {
	query := `
		UPDATE iot_sensors
		SET last_seen = $2,
		    battery_level = COALESCE($3, battery_level),
		    updated_at = NOW()
		WHERE id = $1
	`

	var battery sql.NullInt64
	if batteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*batteryLevel), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, sensorID, seenAt, battery); err != nil {
		return fmt.Errorf("failed to update sensor liveness: %w", err)
	}
	return nil
}

// GetZone 查询区域，不存在时返回 nil, nil
func (r *SensorRepository) GetZone(ctx context.Context, zoneID string) (*models.Zone, error) {
	query := `SELECT id, venue_id, name, capacity FROM venue_zones WHERE id = $1`

	z := &models.Zone{}
	var capacity sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, zoneID).Scan(&z.ID, &z.VenueID, &z.Name, &capacity)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query zone: %w", err)
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		z.Capacity = &c
	}
	return z, nil
}

// ListVenueSensors 查询场馆全部传感器及所在区域名称
func (r *SensorRepository) ListVenueSensors(ctx context.Context, venueID string) ([]*models.Sensor, []*string, error) {
	query := `
		SELECT s.id, s.device_id, s.venue_id, s.zone_id, s.sensor_type, s.status,
		       s.last_seen, s.battery_level, z.name
		FROM iot_sensors s
		LEFT JOIN venue_zones z ON z.id = s.zone_id
		WHERE s.venue_id = $1
		ORDER BY s.device_id
	`

	rows, err := r.db.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query venue sensors: %w", err)
	}
	defer rows.Close()

	var sensors []*models.Sensor
	var zoneNames []*string
	for rows.Next() {
		s := &models.Sensor{}
		var zoneID, zoneName sql.NullString
		var lastSeen sql.NullTime
		var battery sql.NullInt64
		if err := rows.Scan(
			&s.ID, &s.DeviceID, &s.VenueID, &zoneID, &s.SensorType, &s.Status,
			&lastSeen, &battery, &zoneName,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		if zoneID.Valid {
			s.ZoneID = &zoneID.String
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			s.LastSeen = &t
		}
		if battery.Valid {
			b := int(battery.Int64)
			s.BatteryLevel = &b
		}
		var name *string
		if zoneName.Valid {
			n := zoneName.String
			name = &n
		}
		sensors = append(sensors, s)
		zoneNames = append(zoneNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate sensors: %w", err)
	}
	return sensors, zoneNames, nil
}
