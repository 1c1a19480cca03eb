// Package ticketclient 远程票务系统 API 客户端
package ticketclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// Client 票务 API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建票务客户端
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// GetTicket 查询票据，404 时返回 nil, nil
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", ticketID).
		SetResult(&ticket).
		Get("/tickets/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to call ticket API: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &ticket, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		c.logger.Error("Ticket API returned error",
			zap.String("ticket_id", ticketID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("ticket API error: status %d", resp.StatusCode())
	}
}

type statusUpdate struct {
	Status string `json:"status"`
}

// SetTicketStatus 更新票据状态
func (c *Client) SetTicketStatus(ctx context.Context, ticketID, status string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", ticketID).
		SetBody(statusUpdate{Status: status}).
		Patch("/tickets/{id}/status")
	if err != nil {
		return fmt.Errorf("failed to call ticket API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ticket API error: status %d", resp.StatusCode())
	}
	return nil
}
