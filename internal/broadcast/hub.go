package broadcast

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
)

// Subscriber 场馆更新回调，返回的错误只记录日志
type Subscriber func(update models.VenueUpdate) error

// Forwarder 将本地更新转发到跨实例实时通道
type Forwarder interface {
	Forward(ctx context.Context, update models.VenueUpdate)
}

// Hub 进程内场馆订阅中心
// 回调在锁外同步执行，单个订阅者失败不影响其他订阅者
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[uint64]Subscriber
	nextID    uint64
	forwarder Forwarder
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewHub 创建订阅中心
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]map[uint64]Subscriber),
		logger:  logger,
		metrics: m,
	}
}

// SetForwarder 设置跨实例转发（可选）
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarder = f
}

// Subscribe 订阅场馆更新，返回取消订阅函数（可重复调用）
func (h *Hub) Subscribe(venueID string, fn Subscriber) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	set, ok := h.subs[venueID]
	if !ok {
		set = make(map[uint64]Subscriber)
		h.subs[venueID] = set
	}
	set[id] = fn
	total := h.countLocked()
	h.mu.Unlock()

	h.metrics.SetSubscribers(total)
	h.logger.Debug("Subscriber registered", zap.String("venue_id", venueID), zap.Uint64("subscriber_id", id))

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(venueID, id) })
	}
}

func (h *Hub) unsubscribe(venueID string, id uint64) {
	h.mu.Lock()
	if set, ok := h.subs[venueID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.subs, venueID)
		}
	}
	total := h.countLocked()
	h.mu.Unlock()

	h.metrics.SetSubscribers(total)
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// SubscriberCount 场馆当前订阅者数量
func (h *Hub) SubscriberCount(venueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[venueID])
}

// HasVenue 场馆是否存在订阅集合
func (h *Hub) HasVenue(venueID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[venueID]
	return ok
}

// BroadcastSensorUpdate 推送传感器上报
func (h *Hub) BroadcastSensorUpdate(ctx context.Context, venueID string, payload models.SensorPayload) {
	h.publish(ctx, models.VenueUpdate{
		Type:    models.UpdateSensor,
		VenueID: venueID,
		Sensor:  &payload,
	})
}

// BroadcastCapacityUpdate 推送区域容量变化
func (h *Hub) BroadcastCapacityUpdate(ctx context.Context, venueID, zoneID string, update models.CapacityUpdate) {
	h.publish(ctx, models.VenueUpdate{
		Type:     models.UpdateCapacity,
		VenueID:  venueID,
		ZoneID:   zoneID,
		Capacity: &update,
	})
}

// BroadcastCheckinUpdate 推送入场事件
func (h *Hub) BroadcastCheckinUpdate(ctx context.Context, venueID string, update models.CheckinUpdate) {
	zoneID := ""
	if update.ZoneID != nil {
		zoneID = *update.ZoneID
	}
	h.publish(ctx, models.VenueUpdate{
		Type:    models.UpdateCheckin,
		VenueID: venueID,
		ZoneID:  zoneID,
		Checkin: &update,
	})
}

func (h *Hub) publish(ctx context.Context, update models.VenueUpdate) {
	h.Deliver(update)

	h.mu.RLock()
	f := h.forwarder
	h.mu.RUnlock()
	if f != nil {
		f.Forward(ctx, update)
	}
}

// Deliver 只投递给本进程订阅者，返回成功投递的数量
func (h *Hub) Deliver(update models.VenueUpdate) int {
	h.mu.RLock()
	set := h.subs[update.VenueID]
	snapshot := make([]Subscriber, 0, len(set))
	for _, fn := range set {
		snapshot = append(snapshot, fn)
	}
	h.mu.RUnlock()

	h.metrics.Broadcast(string(update.Type))

	delivered := 0
	for _, fn := range snapshot {
		if err := h.invoke(fn, update); err != nil {
			h.metrics.SubscriberError()
			h.logger.Warn("Subscriber callback failed",
				zap.String("venue_id", update.VenueID),
				zap.String("type", string(update.Type)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) invoke(fn Subscriber, update models.VenueUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(update)
}
