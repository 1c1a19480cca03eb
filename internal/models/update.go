package models

import (
	"encoding/json"
	"time"
)

// UpdateType 推送给订阅者的更新类型
type UpdateType string

const (
	UpdateSensor   UpdateType = "sensor"
	UpdateCapacity UpdateType = "capacity"
	UpdateCheckin  UpdateType = "checkin"
)

// 实时频道上的事件名
const (
	EventSensorUpdate   = "sensor-update"
	EventCapacityUpdate = "capacity-update"
	EventCheckinUpdate  = "checkin-update"
)

// CapacityUpdate 容量变化推送内容
type CapacityUpdate struct {
	Occupancy   int     `json:"occupancy"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// CheckinUpdate 入场推送内容
type CheckinUpdate struct {
	TicketID   string    `json:"ticketId"`
	AttendeeID string    `json:"attendeeId"`
	ZoneID     *string   `json:"zoneId,omitempty"`
	Method     string    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
}

// VenueUpdate 订阅者收到的事件；本地与远端来源的结构一致
type VenueUpdate struct {
	Type     UpdateType      `json:"type"`
	VenueID  string          `json:"venueId"`
	ZoneID   string          `json:"zoneId,omitempty"`
	Sensor   *SensorPayload  `json:"sensor,omitempty"`
	Capacity *CapacityUpdate `json:"capacity,omitempty"`
	Checkin  *CheckinUpdate  `json:"checkin,omitempty"`
}

// Envelope 实时频道上传输的消息
type Envelope struct {
	Event   string          `json:"event"`
	Origin  string          `json:"origin"`
	VenueID string          `json:"venueId"`
	ZoneID  string          `json:"zoneId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Durability 派生处理路径的失败策略
type Durability int

const (
	// BestEffort 失败仅记录日志，不影响调用方
	BestEffort Durability = iota
	// Critical 失败向调用方返回错误
	Critical
)

func (d Durability) String() string {
	if d == Critical {
		return "critical"
	}
	return "best_effort"
}
