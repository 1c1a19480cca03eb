package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

const (
	liveBufferSize   = 64
	liveWriteTimeout = 10 * time.Second
	livePongWait     = 60 * time.Second
	livePingInterval = 30 * time.Second
)

var errLiveBufferFull = errors.New("live connection buffer full")

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(_ *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Live GET /venues/{venueID}/live
// 将该场馆的实时更新以 JSON 文本帧推送给看板
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "venueID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade websocket", zap.String("venue_id", venueID), zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan models.VenueUpdate, liveBufferSize)
	unsubscribe := h.live.Subscribe(venueID, func(update models.VenueUpdate) error {
		select {
		case updates <- update:
			return nil
		default:
			return errLiveBufferFull
		}
	})
	defer unsubscribe()

	h.logger.Info("Live connection opened", zap.String("venue_id", venueID))
	defer h.logger.Info("Live connection closed", zap.String("venue_id", venueID))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case update := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
