package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// CapacityRepository 区域容量仓库（venue_capacity）
type CapacityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCapacityRepository 创建容量仓库
func NewCapacityRepository(db *sql.DB, logger *zap.Logger) *CapacityRepository {
	return &CapacityRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertCapacity 写入区域容量
// 已有记录的 last_updated 晚于本次写入时不覆盖，返回 applied=false
func (r *CapacityRepository) UpsertCapacity(ctx context.Context, rec *models.CapacityRecord) (bool, error) {
	query := `
		INSERT INTO venue_capacity (
			venue_id, zone_id, current_occupancy, max_capacity,
			utilization_rate, last_updated, updated_by_sensor
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (venue_id, zone_id) DO UPDATE SET
			current_occupancy = EXCLUDED.current_occupancy,
			max_capacity = EXCLUDED.max_capacity,
			utilization_rate = EXCLUDED.utilization_rate,
			last_updated = EXCLUDED.last_updated,
			updated_by_sensor = EXCLUDED.updated_by_sensor
		WHERE venue_capacity.last_updated <= EXCLUDED.last_updated
	`

	res, err := r.db.ExecContext(ctx, query,
		rec.VenueID,
		rec.ZoneID,
		rec.CurrentOccupancy,
		rec.MaxCapacity,
		rec.UtilizationRate,
		rec.LastUpdated,
		rec.UpdatedBySensor,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert venue capacity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upsert result: %w", err)
	}
	return affected > 0, nil
}

// ListVenueCapacity 查询场馆容量，zoneID 非空时只返回该区域
func (r *CapacityRepository) ListVenueCapacity(ctx context.Context, venueID, zoneID string) ([]*models.CapacityRecord, error) {
	query := `
		SELECT venue_id, zone_id, current_occupancy, max_capacity,
		       utilization_rate, last_updated, COALESCE(updated_by_sensor::text, '')
		FROM venue_capacity
		WHERE venue_id = $1
	`
	args := []interface{}{venueID}
	if zoneID != "" {
		query += ` AND zone_id = $2`
		args = append(args, zoneID)
	}
	query += ` ORDER BY zone_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query venue capacity: %w", err)
	}
	defer rows.Close()

	var records []*models.CapacityRecord
	for rows.Next() {
		rec := &models.CapacityRecord{}
		if err := rows.Scan(
			&rec.VenueID,
			&rec.ZoneID,
			&rec.CurrentOccupancy,
			&rec.MaxCapacity,
			&rec.UtilizationRate,
			&rec.LastUpdated,
			&rec.UpdatedBySensor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan venue capacity: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate venue capacity: %w", err)
	}
	return records, nil
}

// ListOccupancyInWindow 查询时间窗口内更新过的区域占用人数
func (r *CapacityRepository) ListOccupancyInWindow(ctx context.Context, venueID string, start, end time.Time) ([]int, error) {
	query := `
		SELECT current_occupancy
		FROM venue_capacity
		WHERE venue_id = $1 AND last_updated >= $2 AND last_updated <= $3
	`

	rows, err := r.db.QueryContext(ctx, query, venueID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query occupancy window: %w", err)
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan occupancy: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
