package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "venue-telemetry/common/redis"
	"venue-telemetry/internal/config"
	"venue-telemetry/internal/ingestion"
	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/models"
)

// Metrics 消费者运行统计
type Metrics struct {
	mu sync.RWMutex

	MessagesProcessed int64
	MessagesSucceeded int64
	MessagesFailed    int64
	MessagesDropped   int64 // 永久性错误，已确认但未处理

	TotalProcessingTime time.Duration
	LastProcessTime     time.Time
	StartTime           time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		MessagesDropped:     m.MessagesDropped,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

func (m *Metrics) incrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

func (m *Metrics) incrementSucceeded(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += d
	m.LastProcessTime = time.Now()
}

func (m *Metrics) incrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
}

func (m *Metrics) incrementDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesDropped++
}

// Processor 传感器上报处理方
type Processor interface {
	ProcessSensorData(ctx context.Context, payload models.SensorPayload) error
}

// StreamConsumer Redis Streams 消费者，将上报交给接入管道
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	processor   Processor
	block       time.Duration
	logger      *zap.Logger
	metrics     *Metrics
	prom        *metrics.Metrics
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	processor Processor,
	logger *zap.Logger,
	prom *metrics.Metrics,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		processor:   processor,
		block:       5 * time.Second,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
		prom:        prom,
	}
}

// Metrics 运行统计
func (c *StreamConsumer) Metrics() *Metrics {
	return c.metrics
}

// Start 启动消费循环，读取失败时指数退避（1s 起，最大 30s）
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Ingestion.Stream
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Ingestion.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.config.Ingestion.ConsumerGroup),
		zap.String("consumer_name", c.config.Ingestion.ConsumerName),
		zap.String("stream", stream),
	)

	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.ConsumeOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// ConsumeOnce 先重试本消费者未确认的消息，再读取并处理一批新消息
func (c *StreamConsumer) ConsumeOnce(ctx context.Context) error {
	pending, err := rediscommon.ReadPendingFromStream(
		ctx,
		c.redisClient,
		c.config.Ingestion.Stream,
		c.config.Ingestion.ConsumerGroup,
		c.config.Ingestion.ConsumerName,
		c.config.Ingestion.StreamBatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read pending messages: %w", err)
	}
	if len(pending) > 0 {
		c.logger.Info("Retrying pending messages", zap.Int("count", len(pending)))
		c.handleBatch(ctx, pending)
	}

	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.config.Ingestion.Stream,
		c.config.Ingestion.ConsumerGroup,
		c.config.Ingestion.ConsumerName,
		c.config.Ingestion.StreamBatchSize,
		c.block,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	c.handleBatch(ctx, messages)
	return nil
}

func (c *StreamConsumer) handleBatch(ctx context.Context, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		c.metrics.incrementProcessed()
		ack, err := c.processMessage(ctx, msg)
		if err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Bool("acked", ack),
				zap.Error(err),
			)
		}
		if ack {
			if err := rediscommon.AckMessage(ctx, c.redisClient, msg.Stream, c.config.Ingestion.ConsumerGroup, msg.ID); err != nil {
				c.logger.Warn("Failed to ack message", zap.String("stream_id", msg.ID), zap.Error(err))
			}
		}
	}
}

// processMessage 返回是否确认该消息
// 成功与永久性错误都确认；可重试错误留在 pending 列表，下一轮 ConsumeOnce 重试
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) (bool, error) {
	startTime := time.Now()

	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		c.metrics.incrementDropped()
		c.prom.StreamMessage("dropped")
		return true, fmt.Errorf("missing data field in message")
	}

	payload, err := ingestion.DecodePayload([]byte(dataStr))
	if err != nil {
		c.metrics.incrementDropped()
		c.prom.StreamMessage("dropped")
		return true, err
	}

	if err := c.processor.ProcessSensorData(ctx, *payload); err != nil {
		if isPermanent(err) {
			c.metrics.incrementDropped()
			c.prom.StreamMessage("dropped")
			return true, err
		}
		c.metrics.incrementFailed()
		c.prom.StreamMessage("failed")
		return false, err
	}

	c.metrics.incrementSucceeded(time.Since(startTime))
	c.prom.StreamMessage("processed")
	return true, nil
}

func isPermanent(err error) bool {
	var perr *models.PayloadError
	return errors.As(err, &perr) ||
		errors.Is(err, ingestion.ErrEmptyReadings) ||
		errors.Is(err, ingestion.ErrSensorNotFound) ||
		errors.Is(err, ingestion.ErrSensorInactive)
}

// reportMetrics 定期报告指标（每60秒）
func (c *StreamConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("messages_dropped", snapshot.MessagesDropped),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
