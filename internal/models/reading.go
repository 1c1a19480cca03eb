package models

import (
	"encoding/json"
	"time"
)

// ReadingKind 读数类型（封闭枚举，未知类型解析为 KindUnknown）
type ReadingKind int

const (
	KindUnknown ReadingKind = iota
	KindOccupancyCount
	KindTemperature
	KindHumidity
	KindCO2Level
	KindVOCLevel
	KindNoiseLevel
	KindAirPressure
	KindLightLevel
	KindMotionDetected
	KindBeaconSignal
	KindVibration
)

var readingKindNames = map[ReadingKind]string{
	KindOccupancyCount: "occupancy_count",
	KindTemperature:    "temperature",
	KindHumidity:       "humidity",
	KindCO2Level:       "co2_level",
	KindVOCLevel:       "voc_level",
	KindNoiseLevel:     "noise_level",
	KindAirPressure:    "air_pressure",
	KindLightLevel:     "light_level",
	KindMotionDetected: "motion_detected",
	KindBeaconSignal:   "beacon_signal",
	KindVibration:      "vibration",
}

var readingKindByName = func() map[string]ReadingKind {
	m := make(map[string]ReadingKind, len(readingKindNames))
	for k, name := range readingKindNames {
		m[name] = k
	}
	return m
}()

// ParseReadingKind 根据上报的 type 字符串解析读数类型
func ParseReadingKind(s string) ReadingKind {
	if k, ok := readingKindByName[s]; ok {
		return k
	}
	return KindUnknown
}

func (k ReadingKind) String() string {
	if name, ok := readingKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsEnvironmental 是否属于环境监测指标
func (k ReadingKind) IsEnvironmental() bool {
	switch k {
	case KindTemperature, KindHumidity, KindCO2Level, KindVOCLevel,
		KindNoiseLevel, KindAirPressure, KindLightLevel:
		return true
	}
	return false
}

// RawReading 传感器上报的单条原始读数
type RawReading struct {
	Type     string                 `json:"type"`
	Value    float64                `json:"value"`
	Unit     string                 `json:"unit"`
	Quality  *float64               `json:"quality,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Kind 读数类型
func (r RawReading) Kind() ReadingKind {
	return ParseReadingKind(r.Type)
}

// QualityScore 质量分，缺省为 1.0
func (r RawReading) QualityScore() float64 {
	if r.Quality == nil {
		return 1.0
	}
	return *r.Quality
}

// SensorPayload 一次上报：一个传感器、多条读数
type SensorPayload struct {
	SensorID     string       `json:"sensorId"`
	Readings     []RawReading `json:"readings"`
	Timestamp    *time.Time   `json:"timestamp,omitempty"`
	BatteryLevel *int         `json:"batteryLevel,omitempty"`
	VenueID      string       `json:"venueId,omitempty"`
}

// Reading sensor_readings 表记录（只追加）
type Reading struct {
	ID               string          `json:"id"`
	SensorID         string          `json:"sensor_id"`
	ReadingType      string          `json:"reading_type"`
	Value            float64         `json:"value"`
	Unit             string          `json:"unit"`
	QualityScore     float64         `json:"quality_score"`
	Metadata         json.RawMessage `json:"metadata"`
	ReadingTimestamp time.Time       `json:"reading_timestamp"`
}
