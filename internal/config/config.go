package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"venue-telemetry/common/config"

	"gopkg.in/yaml.v3"
)

// Config venue-telemetry 服务配置
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	// 传感器数据接入
	Ingestion struct {
		BatchSize       int           `yaml:"batch_size"`        // 单次写入的读数条数，默认 100
		Timeout         time.Duration `yaml:"timeout"`           // 单次 ProcessSensorData 的截止时间
		SensorAPIKey    string        `yaml:"sensor_api_key"`    // HTTP 上报的 x-sensor-key
		Topic           string        `yaml:"topic"`             // MQTT 订阅主题，如 "venue/+/sensor/+/data"
		Stream          string        `yaml:"stream"`            // Redis Stream 名称
		ConsumerGroup   string        `yaml:"consumer_group"`    // 消费者组
		ConsumerName    string        `yaml:"consumer_name"`     // 消费者名称
		StreamBatchSize int64         `yaml:"stream_batch_size"` // 每次 XREADGROUP 读取条数
	} `yaml:"ingestion"`

	// 容量计算
	Capacity struct {
		DefaultMaxCapacity int           `yaml:"default_max_capacity"` // 区域和传感器都没有声明容量时使用
		MirrorEnabled      bool          `yaml:"mirror_enabled"`       // 是否把最新容量镜像到 Redis
		MirrorKeyPrefix    string        `yaml:"mirror_key_prefix"`
		MirrorTTL          time.Duration `yaml:"mirror_ttl"`
	} `yaml:"capacity"`

	Environment struct {
		DefaultHours int `yaml:"default_hours"`
	} `yaml:"environment"`

	// 维护预警
	Maintenance struct {
		LookbackHours int           `yaml:"lookback_hours"`
		DedupWindow   time.Duration `yaml:"dedup_window"` // 0 表示不去重
	} `yaml:"maintenance"`

	Presence struct {
		LockStripes int `yaml:"lock_stripes"`
	} `yaml:"presence"`

	// 实时频道（Redis Pub/Sub，频道名 venue-{venueId}）
	Realtime struct {
		Enabled bool     `yaml:"enabled"`
		Venues  []string `yaml:"venues"` // 启动时打开频道的场馆
	} `yaml:"realtime"`

	// 票务协作方：postgres（直接读写 tickets 表）或 http（远程票务服务）
	Tickets struct {
		Backend string        `yaml:"backend"`
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"tickets"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 加载配置：默认值 -> CONFIG_FILE（可选 YAML）-> 环境变量
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Ingestion.BatchSize = getEnvInt("INGEST_BATCH_SIZE", cfg.Ingestion.BatchSize)
	cfg.Ingestion.Timeout = getEnvDuration("INGEST_TIMEOUT", cfg.Ingestion.Timeout)
	cfg.Ingestion.SensorAPIKey = getEnv("SENSOR_API_KEY", cfg.Ingestion.SensorAPIKey)
	cfg.Ingestion.Topic = getEnv("INGEST_MQTT_TOPIC", cfg.Ingestion.Topic)
	cfg.Ingestion.Stream = getEnv("INGEST_STREAM", cfg.Ingestion.Stream)
	cfg.Ingestion.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", cfg.Ingestion.ConsumerGroup)
	cfg.Ingestion.ConsumerName = getEnv("INGEST_CONSUMER_NAME", cfg.Ingestion.ConsumerName)

	cfg.Capacity.DefaultMaxCapacity = getEnvInt("CAPACITY_DEFAULT_MAX", cfg.Capacity.DefaultMaxCapacity)
	cfg.Capacity.MirrorEnabled = getEnv("CAPACITY_MIRROR_ENABLED", strconv.FormatBool(cfg.Capacity.MirrorEnabled)) == "true"

	cfg.Maintenance.DedupWindow = getEnvDuration("MAINTENANCE_DEDUP_WINDOW", cfg.Maintenance.DedupWindow)

	cfg.Realtime.Enabled = getEnv("REALTIME_ENABLED", strconv.FormatBool(cfg.Realtime.Enabled)) == "true"
	if venues := os.Getenv("REALTIME_VENUES"); venues != "" {
		cfg.Realtime.Venues = splitList(venues)
	}

	cfg.Tickets.Backend = getEnv("TICKETS_BACKEND", cfg.Tickets.Backend)
	cfg.Tickets.BaseURL = getEnv("TICKETS_BASE_URL", cfg.Tickets.BaseURL)
	cfg.Tickets.APIKey = getEnv("TICKETS_API_KEY", cfg.Tickets.APIKey)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "ticketing"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "venue-telemetry"
	cfg.MQTT.QoS = 1

	cfg.HTTP.Addr = ":8080"

	cfg.Ingestion.BatchSize = 100
	cfg.Ingestion.Timeout = 10 * time.Second
	cfg.Ingestion.Topic = "venue/+/sensor/+/data"
	cfg.Ingestion.Stream = "venue:sensor:stream"
	cfg.Ingestion.ConsumerGroup = "venue-telemetry"
	cfg.Ingestion.ConsumerName = "venue-telemetry-1"
	cfg.Ingestion.StreamBatchSize = 10

	cfg.Capacity.DefaultMaxCapacity = 100
	cfg.Capacity.MirrorKeyPrefix = "capacity:"
	cfg.Capacity.MirrorTTL = 5 * time.Minute

	cfg.Environment.DefaultHours = 24

	cfg.Maintenance.LookbackHours = 24
	cfg.Maintenance.DedupWindow = time.Hour

	cfg.Presence.LockStripes = 64

	cfg.Tickets.Backend = "postgres"
	cfg.Tickets.Timeout = 5 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

func (c *Config) validate() error {
	if c.Ingestion.BatchSize <= 0 {
		return fmt.Errorf("ingestion batch size must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Capacity.DefaultMaxCapacity <= 0 {
		return fmt.Errorf("default max capacity must be positive, got %d", c.Capacity.DefaultMaxCapacity)
	}
	switch c.Tickets.Backend {
	case "postgres":
	case "http":
		if c.Tickets.BaseURL == "" {
			return fmt.Errorf("TICKETS_BASE_URL is required when tickets backend is http")
		}
	default:
		return fmt.Errorf("unknown tickets backend: %s", c.Tickets.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
