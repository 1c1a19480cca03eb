package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// ErrDuplicateOpenCheckin 违反 (ticket_id, event_id) 未签出记录唯一索引
var ErrDuplicateOpenCheckin = errors.New("open checkin already exists")

const pqUniqueViolation = "23505"

// CheckinRepository 入场记录仓库（smart_checkins）
type CheckinRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCheckinRepository 创建入场记录仓库
func NewCheckinRepository(db *sql.DB, logger *zap.Logger) *CheckinRepository {
	return &CheckinRepository{
		db:     db,
		logger: logger,
	}
}

// FindOpen 查询未签出的入场记录，不存在时返回 nil, nil
func (r *CheckinRepository) FindOpen(ctx context.Context, ticketID, eventID string) (*models.PresenceRecord, error) {
	query := `
		SELECT id, ticket_id, event_id, attendee_id, venue_id, zone_id,
		       checkin_method, sensor_id, location_accuracy, checkin_timestamp
		FROM smart_checkins
		WHERE ticket_id = $1 AND event_id = $2 AND checkout_timestamp IS NULL
		ORDER BY checkin_timestamp DESC
		LIMIT 1
	`

	rec := &models.PresenceRecord{}
	var zoneID, sensorID sql.NullString
	var accuracy sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, ticketID, eventID).Scan(
		&rec.ID,
		&rec.TicketID,
		&rec.EventID,
		&rec.AttendeeID,
		&rec.VenueID,
		&zoneID,
		&rec.CheckinMethod,
		&sensorID,
		&accuracy,
		&rec.CheckinTimestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open checkin: %w", err)
	}
	rec.ZoneID = stringPtr(zoneID)
	rec.SensorID = stringPtr(sensorID)
	rec.LocationAccuracy = floatPtr(accuracy)
	return rec, nil
}

// InsertCheckin 写入入场记录，返回记录 ID
func (r *CheckinRepository) InsertCheckin(ctx context.Context, rec *models.PresenceRecord) (string, error) {
	query := `
		INSERT INTO smart_checkins (
			ticket_id, event_id, attendee_id, venue_id, zone_id,
			checkin_method, sensor_id, device_info, location_accuracy, checkin_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		rec.TicketID,
		rec.EventID,
		rec.AttendeeID,
		rec.VenueID,
		nullString(rec.ZoneID),
		rec.CheckinMethod,
		nullString(rec.SensorID),
		jsonOrEmpty(rec.DeviceInfo),
		nullFloat(rec.LocationAccuracy),
		rec.CheckinTimestamp,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return "", ErrDuplicateOpenCheckin
		}
		return "", fmt.Errorf("failed to insert checkin: %w", err)
	}
	return id, nil
}

// CloseCheckin 签出：写入签出时间与停留时长
// 记录已被签出时返回 sql.ErrNoRows
func (r *CheckinRepository) CloseCheckin(ctx context.Context, checkinID string, checkoutAt time.Time, durationMinutes int) error {
	query := `
		UPDATE smart_checkins
		SET checkout_timestamp = $2, duration_minutes = $3
		WHERE id = $1 AND checkout_timestamp IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, checkinID, checkoutAt, durationMinutes)
	if err != nil {
		return fmt.Errorf("failed to close checkin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read checkout result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EventCheckinStats 统计活动入场次数与平均停留时长（未签出按 0 计）
func (r *CheckinRepository) EventCheckinStats(ctx context.Context, eventID string) (int, float64, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(COALESCE(duration_minutes, 0)), 0)
		FROM smart_checkins
		WHERE event_id = $1
	`

	var total int
	var avgDwell float64
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&total, &avgDwell); err != nil {
		return 0, 0, fmt.Errorf("failed to query checkin stats: %w", err)
	}
	return total, avgDwell, nil
}
