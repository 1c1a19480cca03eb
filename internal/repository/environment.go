package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// EnvironmentRepository 环境历史仓库（environmental_data，只追加）
type EnvironmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEnvironmentRepository 创建环境历史仓库
func NewEnvironmentRepository(db *sql.DB, logger *zap.Logger) *EnvironmentRepository {
	return &EnvironmentRepository{
		db:     db,
		logger: logger,
	}
}

// InsertObservation 写入一条环境观测
func (r *EnvironmentRepository) InsertObservation(ctx context.Context, obs *models.EnvironmentalObservation) error {
	query := `
		INSERT INTO environmental_data (
			venue_id, zone_id, sensor_id,
			temperature, humidity, co2_level, voc_level,
			noise_level, air_pressure, light_level, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		obs.VenueID,
		nullString(obs.ZoneID),
		obs.SensorID,
		nullFloat(obs.Temperature),
		nullFloat(obs.Humidity),
		nullFloat(obs.CO2Level),
		nullFloat(obs.VOCLevel),
		nullFloat(obs.NoiseLevel),
		nullFloat(obs.AirPressure),
		nullFloat(obs.LightLevel),
		obs.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert environmental data: %w", err)
	}
	return nil
}

// ListSince 查询某时间点之后的环境观测，按时间倒序
func (r *EnvironmentRepository) ListSince(ctx context.Context, venueID string, since time.Time) ([]*models.EnvironmentalObservation, error) {
	query := `
		SELECT d.id, d.venue_id, d.zone_id, d.sensor_id,
		       d.temperature, d.humidity, d.co2_level, d.voc_level,
		       d.noise_level, d.air_pressure, d.light_level, d.recorded_at,
		       z.name, s.sensor_type
		FROM environmental_data d
		LEFT JOIN venue_zones z ON z.id = d.zone_id
		LEFT JOIN iot_sensors s ON s.id = d.sensor_id
		WHERE d.venue_id = $1 AND d.recorded_at >= $2
		ORDER BY d.recorded_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, venueID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query environmental data: %w", err)
	}
	defer rows.Close()

	var result []*models.EnvironmentalObservation
	for rows.Next() {
		obs := &models.EnvironmentalObservation{}
		var zoneID, zoneName, sensorType sql.NullString
		var temp, hum, co2, voc, noise, pressure, light sql.NullFloat64
		if err := rows.Scan(
			&obs.ID, &obs.VenueID, &zoneID, &obs.SensorID,
			&temp, &hum, &co2, &voc,
			&noise, &pressure, &light, &obs.RecordedAt,
			&zoneName, &sensorType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan environmental data: %w", err)
		}
		obs.ZoneID = stringPtr(zoneID)
		obs.ZoneName = stringPtr(zoneName)
		obs.SensorType = stringPtr(sensorType)
		obs.Temperature = floatPtr(temp)
		obs.Humidity = floatPtr(hum)
		obs.CO2Level = floatPtr(co2)
		obs.VOCLevel = floatPtr(voc)
		obs.NoiseLevel = floatPtr(noise)
		obs.AirPressure = floatPtr(pressure)
		obs.LightLevel = floatPtr(light)
		result = append(result, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate environmental data: %w", err)
	}
	return result, nil
}
