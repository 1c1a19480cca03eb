package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// AnalyticsRepository 场馆分析仓库（events / venue_analytics）
type AnalyticsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAnalyticsRepository 创建场馆分析仓库
func NewAnalyticsRepository(db *sql.DB, logger *zap.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{
		db:     db,
		logger: logger,
	}
}

// GetEvent 查询活动，不存在时返回 nil, nil
func (r *AnalyticsRepository) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `SELECT id, venue_id, start_date, end_date FROM events WHERE id = $1`

	ev := &models.Event{}
	var venueID sql.NullString
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&ev.ID, &venueID, &ev.StartDate, &ev.EndDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	ev.VenueID = stringPtr(venueID)
	return ev, nil
}

// InsertAnalytics 写入场馆分析结果
func (r *AnalyticsRepository) InsertAnalytics(ctx context.Context, a *models.VenueAnalytics) error {
	query := `
		INSERT INTO venue_analytics (
			event_id, venue_id, date, peak_occupancy,
			average_occupancy, total_checkins, average_dwell_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.EventID,
		a.VenueID,
		a.Date,
		a.PeakOccupancy,
		a.AverageOccupancy,
		a.TotalCheckins,
		a.AverageDwellTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue analytics: %w", err)
	}
	return nil
}
