package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"venue-telemetry/common/database"
	mqttcommon "venue-telemetry/common/mqtt"
	rediscommon "venue-telemetry/common/redis"
	"venue-telemetry/internal/analytics"
	"venue-telemetry/internal/broadcast"
	"venue-telemetry/internal/capacity"
	"venue-telemetry/internal/config"
	"venue-telemetry/internal/consumer"
	"venue-telemetry/internal/environment"
	httpapi "venue-telemetry/internal/http"
	"venue-telemetry/internal/ingestion"
	"venue-telemetry/internal/maintenance"
	"venue-telemetry/internal/metrics"
	"venue-telemetry/internal/presence"
	"venue-telemetry/internal/repository"
	"venue-telemetry/internal/ticketclient"
)

// TelemetryService 场馆遥测服务，显式持有全部组件
type TelemetryService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	registry    *prometheus.Registry
	metrics     *metrics.Metrics

	hub      *broadcast.Hub
	bridge   *broadcast.Bridge
	capacity *capacity.Engine
	history  *environment.History
	advisor  *maintenance.Advisor
	presence *presence.Service
	analytic *analytics.Service
	pipeline *ingestion.Pipeline

	streamConsumer *consumer.StreamConsumer
	mqttClient     *mqttcommon.Client
	mqttConsumer   *consumer.MQTTConsumer
	httpServer     *http.Server

	wg sync.WaitGroup
}

// NewTelemetryService 连接 PostgreSQL 与 Redis 并装配各组件
func NewTelemetryService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*TelemetryService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s, err := newTelemetryService(cfg, db, redisClient, logger)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newTelemetryService(cfg *config.Config, db *sql.DB, redisClient *redis.Client, logger *zap.Logger) (*TelemetryService, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	// 创建Repository
	sensorRepo := repository.NewSensorRepository(db, logger)
	readingRepo := repository.NewReadingRepository(db, logger)
	capacityRepo := repository.NewCapacityRepository(db, logger)
	environmentRepo := repository.NewEnvironmentRepository(db, logger)
	checkinRepo := repository.NewCheckinRepository(db, logger)
	maintenanceRepo := repository.NewMaintenanceRepository(db, logger)
	analyticsRepo := repository.NewAnalyticsRepository(db, logger)

	tickets, err := newTicketGateway(cfg, db, logger)
	if err != nil {
		return nil, err
	}

	// 实时推送：本进程订阅中心 + 跨实例 Redis 频道
	hub := broadcast.NewHub(logger, m)
	var bridge *broadcast.Bridge
	if cfg.Realtime.Enabled {
		bridge = broadcast.NewBridge(redisClient, hub, uuid.NewString(), logger)
	}

	var mirror *capacity.Mirror
	if cfg.Capacity.MirrorEnabled {
		mirror = capacity.NewMirror(
			capacity.NewRedisKVStore(redisClient),
			cfg.Capacity.MirrorKeyPrefix,
			cfg.Capacity.MirrorTTL,
			logger,
		)
	}

	engine := capacity.NewEngine(sensorRepo, capacityRepo, mirror, hub, cfg.Capacity.DefaultMaxCapacity, logger, m)
	history := environment.NewHistory(sensorRepo, environmentRepo, cfg.Environment.DefaultHours, logger)
	advisor := maintenance.NewAdvisor(
		maintenanceRepo,
		time.Duration(cfg.Maintenance.LookbackHours)*time.Hour,
		cfg.Maintenance.DedupWindow,
		logger,
		m,
	)
	presenceSvc := presence.NewService(tickets, checkinRepo, hub, cfg.Presence.LockStripes, logger, m)
	analyticsSvc := analytics.NewService(analyticsRepo, capacityRepo, checkinRepo, logger)
	pipeline := ingestion.NewPipeline(
		sensorRepo,
		readingRepo,
		engine,
		history,
		hub,
		ingestion.Config{BatchSize: cfg.Ingestion.BatchSize, Timeout: cfg.Ingestion.Timeout},
		logger,
		m,
	)

	s := &TelemetryService{
		config:         cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		registry:       registry,
		metrics:        m,
		hub:            hub,
		bridge:         bridge,
		capacity:       engine,
		history:        history,
		advisor:        advisor,
		presence:       presenceSvc,
		analytic:       analyticsSvc,
		pipeline:       pipeline,
		streamConsumer: consumer.NewStreamConsumer(cfg, redisClient, pipeline, logger, m),
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Sensors:      pipeline,
		Checkins:     presenceSvc,
		Capacity:     engine,
		Environment:  history,
		Maintenance:  advisor,
		Analytics:    analyticsSvc,
		Live:         &liveFeed{hub: hub, bridge: bridge, logger: logger},
		SensorAPIKey: cfg.Ingestion.SensorAPIKey,
	}, logger)
	s.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(handler, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func newTicketGateway(cfg *config.Config, db *sql.DB, logger *zap.Logger) (presence.TicketGateway, error) {
	switch cfg.Tickets.Backend {
	case "http":
		return ticketclient.NewClient(cfg.Tickets.BaseURL, cfg.Tickets.APIKey, cfg.Tickets.Timeout, logger), nil
	case "postgres", "":
		return repository.NewTicketRepository(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown tickets backend: %s", cfg.Tickets.Backend)
	}
}

// Advisor 维护分析器（CLI analyze 子命令使用）
func (s *TelemetryService) Advisor() *maintenance.Advisor {
	return s.advisor
}

// Pipeline 接入管道
func (s *TelemetryService) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// Analytics 活动分析服务
func (s *TelemetryService) Analytics() *analytics.Service {
	return s.analytic
}

// Start 启动实时频道、消费者与 HTTP 服务，阻塞到 ctx 取消或 HTTP 服务异常退出
func (s *TelemetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting venue telemetry service components")

	if s.bridge != nil {
		for _, venueID := range s.config.Realtime.Venues {
			if err := s.bridge.Initialize(ctx, venueID); err != nil {
				return fmt.Errorf("failed to initialize real-time channel: %w", err)
			}
		}
	}

	// 启动Stream消费者
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.streamConsumer.Start(ctx); err != nil {
			s.logger.Error("Stream consumer exited", zap.Error(err))
		}
	}()

	// 启动MQTT消费者
	if s.config.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&s.config.MQTT, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
		s.mqttClient = client
		s.mqttConsumer = consumer.NewMQTTConsumer(s.config, client, s.redisClient, s.logger)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.mqttConsumer.Start(ctx); err != nil {
				s.logger.Error("MQTT consumer exited", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("Venue telemetry service started successfully")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Stop 停止服务
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping venue telemetry service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	s.wg.Wait()

	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			s.logger.Error("Error closing real-time channels", zap.Error(err))
		}
	}

	// 关闭Redis
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Venue telemetry service stopped")
	return nil
}

// liveFeed 看板订阅时按需打开场馆的跨实例频道
type liveFeed struct {
	hub    *broadcast.Hub
	bridge *broadcast.Bridge
	logger *zap.Logger
}

func (f *liveFeed) Subscribe(venueID string, fn broadcast.Subscriber) func() {
	if f.bridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.bridge.Initialize(ctx, venueID); err != nil {
			f.logger.Warn("Failed to open real-time channel for live feed",
				zap.String("venue_id", venueID),
				zap.Error(err),
			)
		}
	}
	return f.hub.Subscribe(venueID, fn)
}
