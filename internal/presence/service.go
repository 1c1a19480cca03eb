package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
	"venue-telemetry/internal/repository"
)

var (
	// ErrInvalidTicket 票据不存在、不属于该观众或状态不可入场
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrEventMismatch 票据不属于该活动
	ErrEventMismatch = errors.New("ticket not for this event")
	// ErrNoOpenPresence 没有未签出的入场记录
	ErrNoOpenPresence = errors.New("no open checkin")
	// ErrConcurrentCheckin 并发入场被存储层唯一索引拒绝
	ErrConcurrentCheckin = errors.New("concurrent checkin for ticket")
)

// TicketGateway 票务协作方
type TicketGateway interface {
	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	SetTicketStatus(ctx context.Context, ticketID, status string) error
}

// Store 入场记录持久化
type Store interface {
	FindOpen(ctx context.Context, ticketID, eventID string) (*models.PresenceRecord, error)
	InsertCheckin(ctx context.Context, rec *models.PresenceRecord) (string, error)
	CloseCheckin(ctx context.Context, checkinID string, checkoutAt time.Time, durationMinutes int) error
}

// Broadcaster 入场事件推送
type Broadcaster interface {
	BroadcastCheckinUpdate(ctx context.Context, venueID string, update models.CheckinUpdate)
}

// Service 入场/离场状态机
type Service struct {
	tickets     TicketGateway
	store       Store
	broadcaster Broadcaster
	locks       *stripedLocks
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewService 创建入场服务
func NewService(
	tickets TicketGateway,
	store Store,
	broadcaster Broadcaster,
	lockStripes int,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tickets:     tickets,
		store:       store,
		broadcaster: broadcaster,
		locks:       newStripedLocks(lockStripes),
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

// ProcessSmartCheckin 处理一次刷票：有未签出记录时签出，否则入场
func (s *Service) ProcessSmartCheckin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error) {
	unlock := s.locks.lock(req.TicketID, req.EventID)
	defer unlock()

	ticket, err := s.validateTicket(ctx, req.TicketID, req.EventID, req.AttendeeID)
	if err != nil {
		return nil, err
	}

	open, err := s.store.FindOpen(ctx, req.TicketID, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open checkin: %w", err)
	}
	if open != nil {
		return s.checkout(ctx, open)
	}

	// 签出不看票据状态；新入场只接受 valid
	if ticket.Status != models.TicketStatusValid {
		return nil, ErrInvalidTicket
	}
	return s.checkin(ctx, req)
}

// Checkout 显式签出
func (s *Service) Checkout(ctx context.Context, ticketID, eventID string) (*models.CheckinResult, error) {
	unlock := s.locks.lock(ticketID, eventID)
	defer unlock()

	open, err := s.store.FindOpen(ctx, ticketID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open checkin: %w", err)
	}
	if open == nil {
		return nil, ErrNoOpenPresence
	}
	return s.checkout(ctx, open)
}

func (s *Service) validateTicket(ctx context.Context, ticketID, eventID, attendeeID string) (*models.Ticket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ticket: %w", err)
	}
	if ticket == nil || ticket.UserID != attendeeID {
		return nil, ErrInvalidTicket
	}
	if ticket.EventID != eventID {
		return nil, ErrEventMismatch
	}
	return ticket, nil
}

func (s *Service) checkout(ctx context.Context, open *models.PresenceRecord) (*models.CheckinResult, error) {
	checkoutAt := s.now()
	duration := models.DwellMinutes(open.CheckinTimestamp, checkoutAt)

	if err := s.store.CloseCheckin(ctx, open.ID, checkoutAt, duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoOpenPresence
		}
		return nil, fmt.Errorf("failed to check out: %w", err)
	}

	s.metrics.PresenceTransition(models.CheckinTypeCheckout)
	s.logger.Info("Attendee checked out",
		zap.String("checkin_id", open.ID),
		zap.String("ticket_id", open.TicketID),
		zap.Int("duration_minutes", duration),
	)
	return &models.CheckinResult{Type: models.CheckinTypeCheckout, Duration: &duration}, nil
}

func (s *Service) checkin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error) {
	checkinAt := s.now()
	rec := &models.PresenceRecord{
		TicketID:         req.TicketID,
		EventID:          req.EventID,
		AttendeeID:       req.AttendeeID,
		VenueID:          req.VenueID,
		ZoneID:           req.ZoneID,
		CheckinMethod:    req.Method,
		SensorID:         req.SensorID,
		DeviceInfo:       req.DeviceInfo,
		LocationAccuracy: req.LocationAccuracy,
		CheckinTimestamp: checkinAt,
	}

	id, err := s.store.InsertCheckin(ctx, rec)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOpenCheckin) {
			return nil, ErrConcurrentCheckin
		}
		return nil, fmt.Errorf("failed to check in: %w", err)
	}

	if err := s.tickets.SetTicketStatus(ctx, req.TicketID, models.TicketStatusCheckedIn); err != nil {
		s.logger.Warn("Failed to mark ticket checked in",
			zap.String("ticket_id", req.TicketID),
			zap.Error(err),
		)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastCheckinUpdate(ctx, req.VenueID, models.CheckinUpdate{
			TicketID:   req.TicketID,
			AttendeeID: req.AttendeeID,
			ZoneID:     req.ZoneID,
			Method:     req.Method,
			Timestamp:  checkinAt,
		})
	}

	s.metrics.PresenceTransition(models.CheckinTypeCheckin)
	s.logger.Info("Attendee checked in",
		zap.String("checkin_id", id),
		zap.String("ticket_id", req.TicketID),
		zap.String("venue_id", req.VenueID),
		zap.String("method", req.Method),
	)
	return &models.CheckinResult{Type: models.CheckinTypeCheckin, CheckinID: id}, nil
}
