package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"venue-telemetry/internal/analytics"
	"venue-telemetry/internal/models"
)

// GetCapacity GET /venues/{venueID}/capacity[?zone_id=]
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	zoneID := strings.TrimSpace(r.URL.Query().Get("zone_id"))

	records, err := h.capacity.GetVenueCapacity(r.Context(), venueID, zoneID)
	if err != nil {
		h.logger.Error("Failed to get venue capacity", zap.String("venue_id", venueID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get venue capacity"))
		return
	}
	if records == nil {
		records = []*models.CapacityRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(records))
}

// GetEnvironment GET /venues/{venueID}/environment[?hours=]
func (h *Handler) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	hours := parseInt(r.URL.Query().Get("hours"), 0)

	data, err := h.environment.GetEnvironmentalData(r.Context(), venueID, hours)
	if err != nil {
		h.logger.Error("Failed to get environmental data", zap.String("venue_id", venueID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get environmental data"))
		return
	}
	if data == nil {
		data = []*models.EnvironmentalObservation{}
	}
	writeJSON(w, http.StatusOK, Ok(data))
}

// ExportEnvironment GET /venues/{venueID}/environment/export[?hours=]
func (h *Handler) ExportEnvironment(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")
	hours := parseInt(r.URL.Query().Get("hours"), 0)

	content, err := h.environment.ExportEnvironmentalData(r.Context(), venueID, hours)
	if err != nil {
		h.logger.Error("Failed to export environmental data", zap.String("venue_id", venueID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export environmental data"))
		return
	}

	filename := fmt.Sprintf("environment_%s_%s.xlsx", venueID, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// AnalyzeMaintenance POST /venues/{venueID}/maintenance/analyze
func (h *Handler) AnalyzeMaintenance(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")

	alerts, err := h.maintenance.AnalyzeMaintenanceNeeds(r.Context(), venueID)
	if err != nil {
		h.logger.Error("Failed to analyze maintenance needs", zap.String("venue_id", venueID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to analyze maintenance needs"))
		return
	}
	if alerts == nil {
		alerts = []*models.MaintenanceAlert{}
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// GenerateAnalytics POST /events/{eventID}/analytics
func (h *Handler) GenerateAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	result, err := h.analytics.GenerateVenueAnalytics(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, analytics.ErrEventNotFound) {
			writeJSON(w, http.StatusNotFound, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to generate venue analytics", zap.String("event_id", eventID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate venue analytics"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}
