package models

import (
	"encoding/json"
	"math"
	"time"
)

// PresenceRecord smart_checkins 表记录
// 同一 (ticket_id, event_id) 最多一条 checkout_timestamp 为空的记录
type PresenceRecord struct {
	ID               string          `json:"id"`
	TicketID         string          `json:"ticket_id"`
	EventID          string          `json:"event_id"`
	AttendeeID       string          `json:"attendee_id"`
	VenueID          string          `json:"venue_id"`
	ZoneID           *string         `json:"zone_id"`
	CheckinMethod    string          `json:"checkin_method"`
	SensorID         *string         `json:"sensor_id"`
	DeviceInfo       json.RawMessage `json:"device_info"`
	LocationAccuracy *float64        `json:"location_accuracy"`
	CheckinTimestamp time.Time       `json:"checkin_timestamp"`
	CheckoutAt       *time.Time      `json:"checkout_timestamp"`
	DurationMinutes  *int            `json:"duration_minutes"`
}

// DwellMinutes 停留时长（分钟，四舍五入）
func DwellMinutes(checkin, checkout time.Time) int {
	ms := checkout.Sub(checkin).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return int(math.Round(float64(ms) / 60000))
}

// Ticket 票务协作方提供的票据视图
type Ticket struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

const (
	TicketStatusValid     = "valid"
	TicketStatusCheckedIn = "checked_in"
)

// CheckinRequest processSmartCheckin 的入参
type CheckinRequest struct {
	TicketID         string          `json:"ticketId"`
	EventID          string          `json:"eventId"`
	AttendeeID       string          `json:"attendeeId"`
	VenueID          string          `json:"venueId"`
	ZoneID           *string         `json:"zoneId,omitempty"`
	Method           string          `json:"method"`
	SensorID         *string         `json:"sensorId,omitempty"`
	DeviceInfo       json.RawMessage `json:"deviceInfo,omitempty"`
	LocationAccuracy *float64        `json:"locationAccuracy,omitempty"`
}

const (
	CheckinTypeCheckin  = "checkin"
	CheckinTypeCheckout = "checkout"
)

// CheckinResult 状态机一次转换的结果
type CheckinResult struct {
	Type      string `json:"type"`
	CheckinID string `json:"checkinId,omitempty"`
	Duration  *int   `json:"duration,omitempty"`
}
