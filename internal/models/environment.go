package models

import "time"

// EnvironmentalObservation environmental_data 表记录（只追加）
// 每行只填充本次读数对应的指标列
type EnvironmentalObservation struct {
	ID          int64     `json:"id,omitempty"`
	VenueID     string    `json:"venue_id"`
	ZoneID      *string   `json:"zone_id"`
	SensorID    string    `json:"sensor_id"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	CO2Level    *float64  `json:"co2_level,omitempty"`
	VOCLevel    *float64  `json:"voc_level,omitempty"`
	NoiseLevel  *float64  `json:"noise_level,omitempty"`
	AirPressure *float64  `json:"air_pressure,omitempty"`
	LightLevel  *float64  `json:"light_level,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`

	// 读路径 JOIN 得到，仅用于展示
	ZoneName   *string `json:"zone_name,omitempty"`
	SensorType *string `json:"sensor_type,omitempty"`
}

// SetMetric 按读数类型填充对应列，非环境类型返回 false
func (o *EnvironmentalObservation) SetMetric(kind ReadingKind, value float64) bool {
	v := value
	switch kind {
	case KindTemperature:
		o.Temperature = &v
	case KindHumidity:
		o.Humidity = &v
	case KindCO2Level:
		o.CO2Level = &v
	case KindVOCLevel:
		o.VOCLevel = &v
	case KindNoiseLevel:
		o.NoiseLevel = &v
	case KindAirPressure:
		o.AirPressure = &v
	case KindLightLevel:
		o.LightLevel = &v
	default:
		return false
	}
	return true
}
