package capacity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

type zoneKey struct {
	venueID string
	zoneID  string
}

// Cache 区域容量的进程内镜像，只保存最近一次成功写入
type Cache struct {
	mu      sync.RWMutex
	records map[zoneKey]models.CapacityRecord
}

// NewCache 创建容量缓存
func NewCache() *Cache {
	return &Cache{records: make(map[zoneKey]models.CapacityRecord)}
}

// Put 写入缓存，比已有记录旧的写入被忽略
func (c *Cache) Put(rec models.CapacityRecord) bool {
	key := zoneKey{rec.VenueID, rec.ZoneID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.records[key]; ok && cur.LastUpdated.After(rec.LastUpdated) {
		return false
	}
	c.records[key] = rec
	return true
}

// Get 读取区域容量
func (c *Cache) Get(venueID, zoneID string) (models.CapacityRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[zoneKey{venueID, zoneID}]
	return rec, ok
}

// Venue 场馆下全部已缓存区域
func (c *Cache) Venue(venueID string) []models.CapacityRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.CapacityRecord
	for k, rec := range c.records {
		if k.venueID == venueID {
			out = append(out, rec)
		}
	}
	return out
}

// Mirror 容量的 Redis 镜像（capacity:{venue}:{zone}），供看板快速读取
type Mirror struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewMirror 创建 Redis 镜像
func NewMirror(kv KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *Mirror {
	return &Mirror{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 镜像键
func (m *Mirror) Key(venueID, zoneID string) string {
	return fmt.Sprintf("%s%s:%s", m.prefix, venueID, zoneID)
}

// Store 写入镜像
func (m *Mirror) Store(ctx context.Context, rec models.CapacityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal capacity: %w", err)
	}
	key := m.Key(rec.VenueID, rec.ZoneID)
	if err := m.kv.Set(ctx, key, string(data), m.ttl); err != nil {
		return fmt.Errorf("failed to set capacity mirror: %w", err)
	}

	m.logger.Debug("Updated capacity mirror",
		zap.String("key", key),
		zap.Int("occupancy", rec.CurrentOccupancy),
	)
	return nil
}

// Load 读取镜像，不存在时返回 ErrCacheMiss
func (m *Mirror) Load(ctx context.Context, venueID, zoneID string) (*models.CapacityRecord, error) {
	val, err := m.kv.Get(ctx, m.Key(venueID, zoneID))
	if err != nil {
		return nil, err
	}
	var rec models.CapacityRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capacity mirror: %w", err)
	}
	return &rec, nil
}
