package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// ChannelName 场馆实时频道名
func ChannelName(venueID string) string {
	return "venue-" + venueID
}

// Bridge 通过 Redis pub/sub 在实例之间同步场馆更新
type Bridge struct {
	client *redis.Client
	hub    *Hub
	origin string
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[string]*redis.PubSub
	wg      sync.WaitGroup
	closing bool
}

// NewBridge 创建实时桥接，origin 为空时生成随机实例 ID
func NewBridge(client *redis.Client, hub *Hub, origin string, logger *zap.Logger) *Bridge {
	if origin == "" {
		origin = uuid.New().String()
	}
	b := &Bridge{
		client: client,
		hub:    hub,
		origin: origin,
		logger: logger,
		subs:   make(map[string]*redis.PubSub),
	}
	hub.SetForwarder(b)
	return b
}

// Origin 本实例 ID
func (b *Bridge) Origin() string {
	return b.origin
}

// Initialize 打开场馆实时频道，重复调用无副作用
func (b *Bridge) Initialize(ctx context.Context, venueID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closing {
		return fmt.Errorf("bridge closed")
	}
	if _, ok := b.subs[venueID]; ok {
		return nil
	}

	channel := ChannelName(venueID)
	ps := b.client.Subscribe(ctx, channel)
	// 等待订阅确认，避免随后发布的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe %s: %w", channel, err)
	}
	b.subs[venueID] = ps

	b.wg.Add(1)
	go b.listen(venueID, ps)

	b.logger.Info("Real-time channel initialized", zap.String("channel", channel))
	return nil
}

func (b *Bridge) listen(venueID string, ps *redis.PubSub) {
	defer b.wg.Done()
	for msg := range ps.Channel() {
		b.handleMessage(venueID, []byte(msg.Payload))
	}
}

func (b *Bridge) handleMessage(venueID string, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn("Dropping malformed real-time message",
			zap.String("venue_id", venueID),
			zap.Error(err),
		)
		return
	}
	if env.Origin == b.origin {
		return
	}

	update, err := DecodeEnvelope(env)
	if err != nil {
		b.logger.Warn("Dropping undecodable real-time message",
			zap.String("venue_id", venueID),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return
	}
	// 以订阅频道的场馆为准，消息体中的 venueId 只做核对
	if env.VenueID != "" && env.VenueID != venueID {
		b.logger.Warn("Real-time message venue does not match channel",
			zap.String("venue_id", venueID),
			zap.String("message_venue_id", env.VenueID),
			zap.String("event", env.Event),
		)
	}
	update.VenueID = venueID
	b.hub.Deliver(update)
}

// Forward 发布本地更新到场馆频道，失败只记录日志
func (b *Bridge) Forward(ctx context.Context, update models.VenueUpdate) {
	env, err := EncodeEnvelope(b.origin, update)
	if err != nil {
		b.logger.Warn("Failed to encode venue update", zap.Error(err))
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Warn("Failed to marshal envelope", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, ChannelName(update.VenueID), data).Err(); err != nil {
		b.logger.Warn("Failed to publish venue update",
			zap.String("venue_id", update.VenueID),
			zap.String("event", env.Event),
			zap.Error(err),
		)
	}
}

// Close 关闭所有频道并等待监听协程退出
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closing = true
	subs := b.subs
	b.subs = make(map[string]*redis.PubSub)
	b.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.wg.Wait()
	return firstErr
}

// EncodeEnvelope 将更新编码为频道消息
func EncodeEnvelope(origin string, update models.VenueUpdate) (models.Envelope, error) {
	env := models.Envelope{
		Origin:  origin,
		VenueID: update.VenueID,
		ZoneID:  update.ZoneID,
	}

	var payload interface{}
	switch update.Type {
	case models.UpdateSensor:
		env.Event = models.EventSensorUpdate
		payload = update.Sensor
	case models.UpdateCapacity:
		env.Event = models.EventCapacityUpdate
		payload = update.Capacity
	case models.UpdateCheckin:
		env.Event = models.EventCheckinUpdate
		payload = update.Checkin
	default:
		return env, fmt.Errorf("unknown update type: %s", update.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("failed to marshal payload: %w", err)
	}
	env.Payload = raw
	return env, nil
}

// DecodeEnvelope 将频道消息解码为类型化更新
func DecodeEnvelope(env models.Envelope) (models.VenueUpdate, error) {
	update := models.VenueUpdate{
		VenueID: env.VenueID,
		ZoneID:  env.ZoneID,
	}

	switch env.Event {
	case models.EventSensorUpdate:
		var p models.SensorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return update, fmt.Errorf("invalid sensor payload: %w", err)
		}
		update.Type = models.UpdateSensor
		update.Sensor = &p
	case models.EventCapacityUpdate:
		var p models.CapacityUpdate
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return update, fmt.Errorf("invalid capacity payload: %w", err)
		}
		update.Type = models.UpdateCapacity
		update.Capacity = &p
	case models.EventCheckinUpdate:
		var p models.CheckinUpdate
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return update, fmt.Errorf("invalid checkin payload: %w", err)
		}
		update.Type = models.UpdateCheckin
		update.Checkin = &p
	default:
		return update, fmt.Errorf("unknown event: %q", env.Event)
	}
	return update, nil
}
