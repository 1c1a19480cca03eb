package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
	"venue-telemetry/internal/presence"
)

// CheckoutRequest 显式签出请求
type CheckoutRequest struct {
	TicketID string `json:"ticketId"`
	EventID  string `json:"eventId"`
}

// PostCheckin POST /checkins
func (h *Handler) PostCheckin(w http.ResponseWriter, r *http.Request) {
	var req models.CheckinRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	req.EventID = strings.TrimSpace(req.EventID)
	req.AttendeeID = strings.TrimSpace(req.AttendeeID)
	req.VenueID = strings.TrimSpace(req.VenueID)
	if req.TicketID == "" || req.EventID == "" || req.AttendeeID == "" || req.VenueID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("ticketId, eventId, attendeeId and venueId are required"))
		return
	}
	if req.Method == "" {
		req.Method = "manual"
	}

	result, err := h.checkins.ProcessSmartCheckin(r.Context(), req)
	if err != nil {
		h.writeCheckinError(w, err, req.TicketID)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// PostCheckout POST /checkins/checkout
func (h *Handler) PostCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.TicketID) == "" || strings.TrimSpace(req.EventID) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("ticketId and eventId are required"))
		return
	}

	result, err := h.checkins.Checkout(r.Context(), req.TicketID, req.EventID)
	if err != nil {
		h.writeCheckinError(w, err, req.TicketID)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *Handler) writeCheckinError(w http.ResponseWriter, err error, ticketID string) {
	switch {
	case errors.Is(err, presence.ErrInvalidTicket), errors.Is(err, presence.ErrConcurrentCheckin):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, presence.ErrEventMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, Fail(err.Error()))
	case errors.Is(err, presence.ErrNoOpenPresence):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	default:
		h.logger.Error("Failed to process checkin", zap.String("ticket_id", ticketID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to process checkin"))
	}
}
