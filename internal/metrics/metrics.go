// Package metrics Prometheus 指标
//
// 所有方法对 nil *Metrics 安全，nil 表示未启用指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venue_telemetry"

// Metrics 引擎各组件的指标集合
type Metrics struct {
	readingsTotal     *prometheus.CounterVec // reading_type
	ingestFailures    *prometheus.CounterVec // reason
	ingestDuration    prometheus.Histogram
	capacityWrites    *prometheus.CounterVec // result: applied, stale, error
	hookEvents        *prometheus.CounterVec // kind: motion_detected, beacon_signal
	alertsCreated     *prometheus.CounterVec // alert_type
	checkinsTotal     *prometheus.CounterVec // type: checkin, checkout
	broadcastsTotal   *prometheus.CounterVec // event
	subscriberErrors  prometheus.Counter
	streamMessages    *prometheus.CounterVec // status: processed, failed
	activeSubscribers prometheus.Gauge
}

// New 创建并注册指标，reg 为 nil 时返回 nil（禁用）
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "readings_total",
			Help:      "Readings persisted by the ingestion pipeline",
		}, []string{"reading_type"}),
		ingestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failures_total",
			Help:      "Rejected or failed ingestion calls",
		}, []string{"reason"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "ProcessSensorData latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		capacityWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capacity",
			Name:      "writes_total",
			Help:      "Capacity upserts by result",
		}, []string{"result"}),
		hookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "hook_events_total",
			Help:      "Motion and beacon readings seen",
		}, []string{"kind"}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "alerts_total",
			Help:      "Maintenance alerts created",
		}, []string{"alert_type"}),
		checkinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "transitions_total",
			Help:      "Presence transitions",
		}, []string{"type"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "updates_total",
			Help:      "Venue updates fanned out",
		}, []string{"event"}),
		subscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscriber_errors_total",
			Help:      "Subscriber callbacks that failed or panicked",
		}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Stream messages handled by status",
		}, []string{"status"}),
		activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Registered in-process subscribers",
		}),
	}

	collectors := []prometheus.Collector{
		m.readingsTotal, m.ingestFailures, m.ingestDuration, m.capacityWrites,
		m.hookEvents, m.alertsCreated, m.checkinsTotal, m.broadcastsTotal,
		m.subscriberErrors, m.streamMessages, m.activeSubscribers,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ReadingPersisted(readingType string, n int) {
	if m == nil {
		return
	}
	m.readingsTotal.WithLabelValues(readingType).Add(float64(n))
}

func (m *Metrics) IngestFailed(reason string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveIngest(d time.Duration) {
	if m == nil {
		return
	}
	m.ingestDuration.Observe(d.Seconds())
}

func (m *Metrics) CapacityWrite(result string) {
	if m == nil {
		return
	}
	m.capacityWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) HookEvent(kind string) {
	if m == nil {
		return
	}
	m.hookEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) AlertCreated(alertType string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(alertType).Inc()
}

func (m *Metrics) PresenceTransition(kind string) {
	if m == nil {
		return
	}
	m.checkinsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) SubscriberError() {
	if m == nil {
		return
	}
	m.subscriberErrors.Inc()
}

func (m *Metrics) StreamMessage(status string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(status).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.activeSubscribers.Set(float64(n))
}
