package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// ErrEventNotFound 活动不存在或未关联场馆
var ErrEventNotFound = errors.New("event not found or has no venue")

// EventStore 活动与分析结果持久化
type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	InsertAnalytics(ctx context.Context, a *models.VenueAnalytics) error
}

// OccupancySource 时间窗口内的区域占用
type OccupancySource interface {
	ListOccupancyInWindow(ctx context.Context, venueID string, start, end time.Time) ([]int, error)
}

// CheckinStats 活动入场统计
type CheckinStats interface {
	EventCheckinStats(ctx context.Context, eventID string) (int, float64, error)
}

// Service 场馆活动分析
type Service struct {
	events    EventStore
	occupancy OccupancySource
	checkins  CheckinStats
	now       func() time.Time
	logger    *zap.Logger
}

// NewService 创建分析服务
func NewService(events EventStore, occupancy OccupancySource, checkins CheckinStats, logger *zap.Logger) *Service {
	return &Service{
		events:    events,
		occupancy: occupancy,
		checkins:  checkins,
		now:       time.Now,
		logger:    logger,
	}
}

// GenerateVenueAnalytics 汇总活动期间的占用与入场数据并保存
// 保存失败只记录日志
func (s *Service) GenerateVenueAnalytics(ctx context.Context, eventID string) (*models.VenueAnalytics, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if event == nil || event.VenueID == nil {
		return nil, ErrEventNotFound
	}

	occupancy, err := s.occupancy.ListOccupancyInWindow(ctx, *event.VenueID, event.StartDate, event.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load occupancy: %w", err)
	}
	total, avgDwell, err := s.checkins.EventCheckinStats(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkins: %w", err)
	}

	peak, sum := 0, 0
	for _, v := range occupancy {
		if v > peak {
			peak = v
		}
		sum += v
	}
	avg := 0.0
	if len(occupancy) > 0 {
		avg = float64(sum) / float64(len(occupancy))
	}

	result := &models.VenueAnalytics{
		EventID:          eventID,
		VenueID:          *event.VenueID,
		Date:             s.now().UTC().Format("2006-01-02"),
		PeakOccupancy:    peak,
		AverageOccupancy: avg,
		TotalCheckins:    total,
		AverageDwellTime: avgDwell,
	}

	if err := s.events.InsertAnalytics(ctx, result); err != nil {
		s.logger.Error("Failed to store venue analytics",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
	return result, nil
}
