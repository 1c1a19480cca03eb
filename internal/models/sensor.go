package models

import (
	"encoding/json"
	"time"
)

// Sensor iot_sensors 表记录
type Sensor struct {
	ID            string          `json:"id"`
	DeviceID      string          `json:"device_id"`
	VenueID       string          `json:"venue_id"`
	ZoneID        *string         `json:"zone_id,omitempty"`
	SensorType    string          `json:"sensor_type"`
	Status        string          `json:"status"`
	LastSeen      *time.Time      `json:"last_seen,omitempty"`
	BatteryLevel  *int            `json:"battery_level,omitempty"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// SensorStatusActive 可接收数据的传感器状态
const SensorStatusActive = "active"

// SensorConfiguration configuration 字段中引擎关心的部分
type SensorConfiguration struct {
	MaxCapacity *int `json:"maxCapacity,omitempty"`
}

// ParsedConfiguration 解析 configuration，格式错误时返回空配置
func (s *Sensor) ParsedConfiguration() SensorConfiguration {
	var cfg SensorConfiguration
	if len(s.Configuration) == 0 {
		return cfg
	}
	_ = json.Unmarshal(s.Configuration, &cfg)
	return cfg
}

// Zone venue_zones 表记录
type Zone struct {
	ID       string `json:"id"`
	VenueID  string `json:"venue_id"`
	Name     string `json:"name"`
	Capacity *int   `json:"capacity,omitempty"`
}

// SensorStatus 场馆传感器在线状态（getVenueSensorStatus）
type SensorStatus struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	DeviceID     string     `json:"deviceId"`
	Status       string     `json:"status"`
	BatteryLevel *int       `json:"batteryLevel"`
	LastSeen     *time.Time `json:"lastSeen"`
	Zone         *string    `json:"zone"`
	IsOnline     bool       `json:"isOnline"`
}

// SensorOnlineWindow 最近一次上报在该时间内视为在线
const SensorOnlineWindow = 5 * time.Minute
