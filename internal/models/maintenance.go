package models

import (
	"encoding/json"
	"time"
)

const (
	AlertTypePreventive = "preventive"
	AlertTypeEmergency  = "emergency"

	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// MaintenanceAlert maintenance_alerts 表记录，创建后不再修改
type MaintenanceAlert struct {
	ID                string          `json:"id"`
	EquipmentID       string          `json:"equipment_id"`
	VenueID           string          `json:"venue_id"`
	AlertType         string          `json:"alert_type"`
	Severity          string          `json:"severity"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	SensorData        json.RawMessage `json:"sensor_data"`
	RecommendedAction string          `json:"recommended_action"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AlertSnapshot sensor_data 字段内容
type AlertSnapshot struct {
	ReadingType string    `json:"reading_type"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

// Equipment venue_equipment 表记录
type Equipment struct {
	ID            string `json:"id"`
	VenueID       string `json:"venue_id"`
	EquipmentType string `json:"equipment_type"`
	Status        string `json:"status"`
}

// EquipmentReading 最近读数与其关联设备（维护分析的输入）
type EquipmentReading struct {
	ReadingID        string
	SensorID         string
	ReadingType      string
	Value            float64
	ReadingTimestamp time.Time
	Equipment        Equipment
}
