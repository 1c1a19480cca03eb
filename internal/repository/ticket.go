package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// TicketRepository 票据仓库（tickets 表，由票务系统维护）
type TicketRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTicketRepository 创建票据仓库
func NewTicketRepository(db *sql.DB, logger *zap.Logger) *TicketRepository {
	return &TicketRepository{
		db:     db,
		logger: logger,
	}
}

// GetTicket 查询票据，不存在时返回 nil, nil
func (r *TicketRepository) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	query := `SELECT id, user_id, event_id, status FROM tickets WHERE id = $1`

	t := &models.Ticket{}
	err := r.db.QueryRowContext(ctx, query, ticketID).Scan(&t.ID, &t.UserID, &t.EventID, &t.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query ticket: %w", err)
	}
	return t, nil
}

// SetTicketStatus 更新票据状态
func (r *TicketRepository) SetTicketStatus(ctx context.Context, ticketID, status string) error {
	query := `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, ticketID, status); err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	return nil
}
