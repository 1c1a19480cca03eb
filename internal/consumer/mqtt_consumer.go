package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	mqttcommon "venue-telemetry/common/mqtt"
	rediscommon "venue-telemetry/common/redis"
	"venue-telemetry/internal/config"
	"venue-telemetry/internal/models"
)

// Subscriber MQTT 订阅能力（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 订阅传感器主题并转存到 Redis Stream
type MQTTConsumer struct {
	config      *config.Config
	mqttClient  Subscriber
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient Subscriber,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 订阅主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Ingestion.Topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.config.Ingestion.Topic),
		zap.String("stream", c.config.Ingestion.Stream),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(c.config.Ingestion.Topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 主题格式: venue/{venue_id}/sensor/{sensor_id}/data
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "venue" || parts[2] != "sensor" {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	venueID, sensorID := parts[1], parts[3]

	var data models.SensorPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		c.logger.Error("Failed to unmarshal MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if data.SensorID == "" {
		data.SensorID = sensorID
	}
	if data.SensorID != sensorID {
		return fmt.Errorf("sensor id mismatch: topic=%s payload=%s", sensorID, data.SensorID)
	}
	data.VenueID = venueID

	streamID, err := rediscommon.PublishJSONToStream(context.Background(), c.redisClient, c.config.Ingestion.Stream, data)
	if err != nil {
		c.logger.Error("Failed to publish to Redis Streams",
			zap.String("stream", c.config.Ingestion.Stream),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	c.logger.Debug("Published sensor data to Redis Streams",
		zap.String("sensor_id", sensorID),
		zap.String("venue_id", venueID),
		zap.String("stream_id", streamID),
	)
	return nil
}
