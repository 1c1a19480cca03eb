package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"venue-telemetry/internal/ingestion"
	"venue-telemetry/internal/models"
)

// SensorDataResponse 上报接口返回，作为 Result.result 返回
type SensorDataResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	SensorID string `json:"sensorId"`
}

// PostSensorData POST /sensor-data
func (h *Handler) PostSensorData(w http.ResponseWriter, r *http.Request) {
	if h.sensorKey != "" && r.Header.Get("x-sensor-key") != h.sensorKey {
		writeJSON(w, http.StatusUnauthorized, Fail("invalid sensor key"))
		return
	}

	body, err := readBody(r, maxBodyBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to read body"))
		return
	}
	payload, err := ingestion.DecodePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	sensorID, err := h.sensors.IngestSensorData(r.Context(), *payload)
	if err != nil {
		status := sensorErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to process sensor data",
				zap.String("sensor_id", payload.SensorID),
				zap.Error(err),
			)
			writeJSON(w, status, Fail("failed to process sensor data"))
			return
		}
		writeJSON(w, status, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(SensorDataResponse{
		Success:  true,
		Message:  fmt.Sprintf("Processed %d readings", len(payload.Readings)),
		SensorID: sensorID,
	}))
}

// GetSensors GET /venues/{venueID}/sensors
func (h *Handler) GetSensors(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	statuses, err := h.sensors.GetVenueSensorStatus(r.Context(), venueID)
	if err != nil {
		h.logger.Error("Failed to get sensor status", zap.String("venue_id", venueID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get sensor status"))
		return
	}
	if statuses == nil {
		statuses = []models.SensorStatus{}
	}
	writeJSON(w, http.StatusOK, Ok(statuses))
}

func sensorErrorStatus(err error) int {
	var perr *models.PayloadError
	switch {
	case errors.As(err, &perr), errors.Is(err, ingestion.ErrEmptyReadings):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrSensorNotFound), errors.Is(err, ingestion.ErrSensorInactive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
