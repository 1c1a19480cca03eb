package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

type fakeSensors struct {
	sensors map[string]*models.Sensor
	zones   map[string]*models.Zone
}

func (f *fakeSensors) GetSensor(_ context.Context, id string) (*models.Sensor, error) {
	return f.sensors[id], nil
}

func (f *fakeSensors) GetZone(_ context.Context, id string) (*models.Zone, error) {
	return f.zones[id], nil
}

// fakeStore 按 last_updated 守卫模拟 upsert
type fakeStore struct {
	mu      sync.Mutex
	rows    map[zoneKey]models.CapacityRecord
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[zoneKey]models.CapacityRecord)}
}

func (f *fakeStore) UpsertCapacity(_ context.Context, rec *models.CapacityRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return false, f.failErr
	}
	key := zoneKey{rec.VenueID, rec.ZoneID}
	if cur, ok := f.rows[key]; ok && cur.LastUpdated.After(rec.LastUpdated) {
		return false, nil
	}
	f.rows[key] = *rec
	return true, nil
}

func (f *fakeStore) ListVenueCapacity(_ context.Context, venueID, zoneID string) ([]*models.CapacityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CapacityRecord
	for k, rec := range f.rows {
		if k.venueID == venueID && (zoneID == "" || k.zoneID == zoneID) {
			r := rec
			out = append(out, &r)
		}
	}
	return out, nil
}

type capturedUpdate struct {
	venueID string
	zoneID  string
	update  models.CapacityUpdate
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	updates []capturedUpdate
}

func (f *fakeBroadcaster) BroadcastCapacityUpdate(_ context.Context, venueID, zoneID string, u models.CapacityUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, capturedUpdate{venueID, zoneID, u})
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func newTestEngine(zoneCapacity *int, sensorConfig string) (*Engine, *fakeStore, *fakeBroadcaster) {
	sensors := &fakeSensors{
		sensors: map[string]*models.Sensor{
			"s-1": {ID: "s-1", VenueID: "v-1", ZoneID: strPtr("z-1"), Status: "active", Configuration: json.RawMessage(sensorConfig)},
			"s-2": {ID: "s-2", VenueID: "v-1", Status: "active"},
		},
		zones: map[string]*models.Zone{
			"z-1": {ID: "z-1", VenueID: "v-1", Name: "Hall", Capacity: zoneCapacity},
		},
	}
	store := newFakeStore()
	b := &fakeBroadcaster{}
	return NewEngine(sensors, store, nil, b, 100, zap.NewNop(), nil), store, b
}

func TestUpdateCapacity_Utilization(t *testing.T) {
	engine, _, b := newTestEngine(intPtr(50), "")

	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 40, time.Now()))

	require.Len(t, b.updates, 1)
	assert.Equal(t, "z-1", b.updates[0].zoneID)
	assert.Equal(t, 40, b.updates[0].update.Occupancy)
	assert.Equal(t, 50, b.updates[0].update.Capacity)
	assert.Equal(t, 80.0, b.updates[0].update.Utilization)
}

func TestUpdateCapacity_ClampsAtHundred(t *testing.T) {
	engine, store, _ := newTestEngine(intPtr(50), "")

	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 55, time.Now()))

	rows, err := engine.GetVenueCapacity(context.Background(), "v-1", "z-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].UtilizationRate)
	assert.Equal(t, 55, rows[0].CurrentOccupancy)
	assert.Len(t, store.rows, 1)
}

func TestUpdateCapacity_RoundsOccupancy(t *testing.T) {
	engine, _, b := newTestEngine(intPtr(50), "")

	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 12.6, time.Now()))
	assert.Equal(t, 13, b.updates[0].update.Occupancy)
}

func TestUpdateCapacity_MaxCapacityPrecedence(t *testing.T) {
	// 区域未设置容量时使用传感器配置
	engine, _, b := newTestEngine(nil, `{"maxCapacity":200}`)
	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 50, time.Now()))
	assert.Equal(t, 200, b.updates[0].update.Capacity)
	assert.Equal(t, 25.0, b.updates[0].update.Utilization)

	// 都未设置时使用默认值
	engine, _, b = newTestEngine(nil, "")
	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 50, time.Now()))
	assert.Equal(t, 100, b.updates[0].update.Capacity)

	// 区域容量优先于传感器配置
	engine, _, b = newTestEngine(intPtr(80), `{"maxCapacity":200}`)
	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 40, time.Now()))
	assert.Equal(t, 80, b.updates[0].update.Capacity)
}

func TestUpdateCapacity_StaleWriteIgnored(t *testing.T) {
	engine, _, b := newTestEngine(intPtr(50), "")
	ctx := context.Background()
	newer := time.Now()
	older := newer.Add(-time.Minute)

	require.NoError(t, engine.UpdateCapacityFromOccupancy(ctx, "s-1", 30, newer))
	require.NoError(t, engine.UpdateCapacityFromOccupancy(ctx, "s-1", 10, older))

	require.Len(t, b.updates, 1)
	rows, err := engine.GetVenueCapacity(ctx, "v-1", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 30, rows[0].CurrentOccupancy)

	cached, ok := engine.Cache().Get("v-1", "z-1")
	require.True(t, ok)
	assert.Equal(t, 30, cached.CurrentOccupancy)
}

func TestUpdateCapacity_Errors(t *testing.T) {
	engine, store, b := newTestEngine(intPtr(50), "")
	ctx := context.Background()

	err := engine.UpdateCapacityFromOccupancy(ctx, "missing", 1, time.Now())
	assert.ErrorIs(t, err, ErrSensorNotFound)

	err = engine.UpdateCapacityFromOccupancy(ctx, "s-2", 1, time.Now())
	assert.ErrorIs(t, err, ErrNoZone)

	store.failErr = errors.New("db down")
	err = engine.UpdateCapacityFromOccupancy(ctx, "s-1", 1, time.Now())
	assert.ErrorIs(t, err, store.failErr)
	assert.Empty(t, b.updates)
}

func TestUpdateCapacity_RedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sensors := &fakeSensors{
		sensors: map[string]*models.Sensor{"s-1": {ID: "s-1", VenueID: "v-1", ZoneID: strPtr("z-1")}},
		zones:   map[string]*models.Zone{"z-1": {ID: "z-1", Capacity: intPtr(50)}},
	}
	mirror := NewMirror(NewRedisKVStore(client), "capacity:", 5*time.Minute, zap.NewNop())
	engine := NewEngine(sensors, newFakeStore(), mirror, nil, 100, zap.NewNop(), nil)

	require.NoError(t, engine.UpdateCapacityFromOccupancy(context.Background(), "s-1", 40, time.Now()))

	assert.True(t, mr.Exists("capacity:v-1:z-1"))
	assert.Greater(t, mr.TTL("capacity:v-1:z-1"), time.Duration(0))

	rec, err := mirror.Load(context.Background(), "v-1", "z-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, rec.UtilizationRate)

	_, err = mirror.Load(context.Background(), "v-1", "z-9")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// 新引擎无内存缓存时回落到镜像
	fresh := NewEngine(sensors, newFakeStore(), mirror, nil, 100, zap.NewNop(), nil)
	got, err := fresh.GetCachedCapacity(context.Background(), "v-1", "z-1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.CurrentOccupancy)
}

func TestCache_PutKeepsNewest(t *testing.T) {
	c := NewCache()
	now := time.Now()

	assert.True(t, c.Put(models.CapacityRecord{VenueID: "v", ZoneID: "z", CurrentOccupancy: 5, LastUpdated: now}))
	assert.False(t, c.Put(models.CapacityRecord{VenueID: "v", ZoneID: "z", CurrentOccupancy: 1, LastUpdated: now.Add(-time.Second)}))
	assert.True(t, c.Put(models.CapacityRecord{VenueID: "v", ZoneID: "z2", CurrentOccupancy: 2, LastUpdated: now}))

	rec, ok := c.Get("v", "z")
	require.True(t, ok)
	assert.Equal(t, 5, rec.CurrentOccupancy)
	assert.Len(t, c.Venue("v"), 2)
}

func TestUtilizationRate(t *testing.T) {
	assert.Equal(t, 80.0, models.UtilizationRate(40, 50))
	assert.Equal(t, 100.0, models.UtilizationRate(55, 50))
	assert.Equal(t, 0.0, models.UtilizationRate(-3, 50))
	assert.Equal(t, 100.0, models.UtilizationRate(1, 0))
}
