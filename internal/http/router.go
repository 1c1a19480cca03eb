package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIPrefix 对外接口前缀
const APIPrefix = "/iot/api/v1"

// NewRouter 注册全部路由；gatherer 为 nil 时不暴露 /metrics
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/sensor-data", h.PostSensorData)

		r.Post("/checkins", h.PostCheckin)
		r.Post("/checkins/checkout", h.PostCheckout)

		r.Route("/venues/{venueID}", func(r chi.Router) {
			r.Get("/capacity", h.GetCapacity)
			r.Get("/environment", h.GetEnvironment)
			r.Get("/environment/export", h.ExportEnvironment)
			r.Get("/sensors", h.GetSensors)
			r.Post("/maintenance/analyze", h.AnalyzeMaintenance)
			r.Get("/live", h.Live)
		})

		r.Post("/events/{eventID}/analytics", h.GenerateAnalytics)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
