package ingestion

import (
	"encoding/json"

	"venue-telemetry/internal/models"
)

// DecodePayload 解析上报 JSON
func DecodePayload(data []byte) (*models.SensorPayload, error) {
	var payload models.SensorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &models.PayloadError{Message: "invalid JSON: " + err.Error()}
	}
	if payload.SensorID == "" {
		return nil, &models.PayloadError{Message: "missing sensorId"}
	}
	if payload.Readings == nil {
		return nil, &models.PayloadError{Message: "readings must be an array"}
	}
	return &payload, nil
}
