package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

type touchCall struct {
	sensorID string
	seenAt   time.Time
	battery  *int
}

type fakeSensors struct {
	sensors map[string]*models.Sensor
	touches []touchCall
	zones   []*string
}

func (f *fakeSensors) GetSensor(_ context.Context, id string) (*models.Sensor, error) {
	return f.sensors[id], nil
}

func (f *fakeSensors) GetSensorByDeviceID(_ context.Context, deviceID string) (*models.Sensor, error) {
	for _, s := range f.sensors {
		if s.DeviceID == deviceID && s.Status == models.SensorStatusActive {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSensors) TouchSensor(_ context.Context, id string, seenAt time.Time, battery *int) error {
	f.touches = append(f.touches, touchCall{id, seenAt, battery})
	return nil
}

func (f *fakeSensors) ListVenueSensors(_ context.Context, venueID string) ([]*models.Sensor, []*string, error) {
	var out []*models.Sensor
	for _, s := range f.sensors {
		if s.VenueID == venueID {
			out = append(out, s)
		}
	}
	zones := make([]*string, len(out))
	return out, zones, nil
}

type fakeReadings struct {
	batches [][]models.Reading
	failAt  int // 第 n 次调用失败（从 1 开始），0 表示不失败
	block   bool
}

func (f *fakeReadings) InsertReadings(ctx context.Context, rows []models.Reading) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	call := len(f.batches) + 1
	if f.failAt == call {
		return errors.New("write failed")
	}
	cp := make([]models.Reading, len(rows))
	copy(cp, rows)
	f.batches = append(f.batches, cp)
	return nil
}

type fakeCapacity struct {
	calls []float64
	err   error
}

func (f *fakeCapacity) ApplyOccupancy(_ context.Context, _ *models.Sensor, occupancy float64, _ time.Time) error {
	f.calls = append(f.calls, occupancy)
	return f.err
}

type fakeEnvironment struct {
	types []string
}

func (f *fakeEnvironment) Record(_ context.Context, _ *models.Sensor, r models.RawReading, _ time.Time) error {
	f.types = append(f.types, r.Type)
	return nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	payloads []models.SensorPayload
	venues   []string
}

func (f *fakeBroadcaster) BroadcastSensorUpdate(_ context.Context, venueID string, p models.SensorPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.venues = append(f.venues, venueID)
	f.payloads = append(f.payloads, p)
}

type fixture struct {
	pipeline *Pipeline
	sensors  *fakeSensors
	readings *fakeReadings
	capacity *fakeCapacity
	env      *fakeEnvironment
	bcast    *fakeBroadcaster
	now      time.Time
}

func newFixture(batchSize int) *fixture {
	zone := "z-1"
	f := &fixture{
		sensors: &fakeSensors{sensors: map[string]*models.Sensor{
			"s-1":   {ID: "s-1", DeviceID: "dev-1", VenueID: "v-1", ZoneID: &zone, SensorType: "multi", Status: "active"},
			"s-off": {ID: "s-off", DeviceID: "dev-off", VenueID: "v-1", SensorType: "temperature", Status: "inactive"},
		}},
		readings: &fakeReadings{},
		capacity: &fakeCapacity{},
		env:      &fakeEnvironment{},
		bcast:    &fakeBroadcaster{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.pipeline = NewPipeline(f.sensors, f.readings, f.capacity, f.env, f.bcast,
		Config{BatchSize: batchSize, Timeout: time.Second}, zap.NewNop(), nil)
	f.pipeline.now = func() time.Time { return f.now }
	return f
}

func makeReadings(n int, typ string) []models.RawReading {
	out := make([]models.RawReading, n)
	for i := range out {
		out[i] = models.RawReading{Type: typ, Value: float64(i), Unit: "u"}
	}
	return out
}

func TestProcessSensorData_BatchesInOrder(t *testing.T) {
	f := newFixture(100)
	battery := 77

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID:     "s-1",
		Readings:     makeReadings(250, "light_level"),
		BatteryLevel: &battery,
	})
	require.NoError(t, err)

	require.Len(t, f.readings.batches, 3)
	assert.Len(t, f.readings.batches[0], 100)
	assert.Len(t, f.readings.batches[1], 100)
	assert.Len(t, f.readings.batches[2], 50)
	assert.Equal(t, 0.0, f.readings.batches[0][0].Value)
	assert.Equal(t, 100.0, f.readings.batches[1][0].Value)
	assert.Equal(t, 249.0, f.readings.batches[2][49].Value)

	require.Len(t, f.sensors.touches, 1)
	assert.Equal(t, f.now, f.sensors.touches[0].seenAt)
	assert.Equal(t, 77, *f.sensors.touches[0].battery)

	assert.Len(t, f.env.types, 250)
	assert.Len(t, f.bcast.payloads, 1)
	assert.Equal(t, "v-1", f.bcast.venues[0])
}

func TestProcessSensorData_PartialFailureStillTouches(t *testing.T) {
	f := newFixture(100)
	f.readings.failAt = 2

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: makeReadings(250, "temperature"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2")

	assert.Len(t, f.readings.batches, 1)
	assert.Len(t, f.sensors.touches, 1)
	assert.Empty(t, f.env.types)
	assert.Empty(t, f.bcast.payloads)
}

func TestProcessSensorData_FirstBatchFailureNoTouch(t *testing.T) {
	f := newFixture(100)
	f.readings.failAt = 1

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: makeReadings(5, "temperature"),
	})
	require.Error(t, err)
	assert.Empty(t, f.sensors.touches)
}

func TestProcessSensorData_Rejections(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()

	err := f.pipeline.ProcessSensorData(ctx, models.SensorPayload{SensorID: "s-1"})
	assert.ErrorIs(t, err, ErrEmptyReadings)

	err = f.pipeline.ProcessSensorData(ctx, models.SensorPayload{SensorID: "nope", Readings: makeReadings(1, "temperature")})
	assert.ErrorIs(t, err, ErrSensorNotFound)

	err = f.pipeline.ProcessSensorData(ctx, models.SensorPayload{SensorID: "s-off", Readings: makeReadings(1, "temperature")})
	assert.ErrorIs(t, err, ErrSensorInactive)

	err = f.pipeline.ProcessSensorData(ctx, models.SensorPayload{SensorID: "s-1", Readings: []models.RawReading{{Value: 1}}})
	var perr *models.PayloadError
	assert.True(t, errors.As(err, &perr))

	assert.Empty(t, f.readings.batches)
	assert.Empty(t, f.sensors.touches)
	assert.Empty(t, f.bcast.payloads)
}

func TestProcessSensorData_ResolvesDeviceID(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()

	id, err := f.pipeline.IngestSensorData(ctx, models.SensorPayload{SensorID: "dev-1", Readings: makeReadings(2, "temperature")})
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)

	require.Len(t, f.readings.batches, 1)
	assert.Equal(t, "s-1", f.readings.batches[0][0].SensorID)
	require.Len(t, f.sensors.touches, 1)
	assert.Equal(t, "s-1", f.sensors.touches[0].sensorID)
	assert.Equal(t, []string{"v-1"}, f.bcast.venues)
	assert.Equal(t, "s-1", f.bcast.payloads[0].SensorID)

	// 未启用设备的设备号不参与匹配
	err = f.pipeline.ProcessSensorData(ctx, models.SensorPayload{SensorID: "dev-off", Readings: makeReadings(1, "temperature")})
	assert.ErrorIs(t, err, ErrSensorNotFound)
}

func TestProcessSensorData_RejectsQualityOutOfRange(t *testing.T) {
	for _, q := range []float64{-0.1, 1.5} {
		f := newFixture(100)
		err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
			SensorID: "s-1",
			Readings: []models.RawReading{{Type: "temperature", Value: 20}, {Type: "humidity", Value: 40, Quality: &q}},
		})
		var perr *models.PayloadError
		require.True(t, errors.As(err, &perr), "quality %v", q)
		assert.Contains(t, perr.Message, "reading 1")
		assert.Empty(t, f.readings.batches)
		assert.Empty(t, f.sensors.touches)
	}

	f := newFixture(100)
	zero, one := 0.0, 1.0
	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: []models.RawReading{{Type: "temperature", Value: 20, Quality: &zero}, {Type: "temperature", Value: 21, Quality: &one}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.readings.batches[0][0].QualityScore)
	assert.Equal(t, 1.0, f.readings.batches[0][1].QualityScore)
}

func TestProcessSensorData_DispatchByKind(t *testing.T) {
	f := newFixture(100)

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: []models.RawReading{
			{Type: "occupancy_count", Value: 40},
			{Type: "humidity", Value: 45},
			{Type: "motion_detected", Value: 1},
			{Type: "beacon_signal", Value: -60},
			{Type: "vibration", Value: 2},
			{Type: "mystery", Value: 3},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{40}, f.capacity.calls)
	assert.Equal(t, []string{"humidity"}, f.env.types)
	require.Len(t, f.readings.batches, 1)
	assert.Len(t, f.readings.batches[0], 6)
	assert.Len(t, f.bcast.payloads, 1)
	assert.Len(t, f.bcast.payloads[0].Readings, 6)
}

func TestProcessSensorData_BestEffortFailureAbsorbed(t *testing.T) {
	f := newFixture(100)
	f.capacity.err = errors.New("capacity store down")

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: []models.RawReading{{Type: "occupancy_count", Value: 40}, {Type: "temperature", Value: 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"temperature"}, f.env.types)
	assert.Len(t, f.bcast.payloads, 1)
}

func TestProcessSensorData_UsesPayloadTimestampAndQuality(t *testing.T) {
	f := newFixture(100)
	ts := time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)
	q := 0.5

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID:  "s-1",
		Timestamp: &ts,
		Readings: []models.RawReading{
			{Type: "temperature", Value: 20, Metadata: map[string]interface{}{"channel": "a"}},
			{Type: "temperature", Value: 21, Quality: &q},
		},
	})
	require.NoError(t, err)

	rows := f.readings.batches[0]
	assert.Equal(t, ts, rows[0].ReadingTimestamp)
	assert.Equal(t, 1.0, rows[0].QualityScore)
	assert.JSONEq(t, `{"channel":"a"}`, string(rows[0].Metadata))
	assert.Equal(t, 0.5, rows[1].QualityScore)
	assert.Nil(t, rows[1].Metadata)

	// 活跃时间取接收时刻，不取上报时间戳
	require.Len(t, f.sensors.touches, 1)
	assert.Equal(t, f.now, f.sensors.touches[0].seenAt)
}

func TestProcessSensorData_Deadline(t *testing.T) {
	f := newFixture(100)
	f.readings.block = true
	f.pipeline.cfg.Timeout = 20 * time.Millisecond

	err := f.pipeline.ProcessSensorData(context.Background(), models.SensorPayload{
		SensorID: "s-1",
		Readings: makeReadings(1, "temperature"),
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetVenueSensorStatus(t *testing.T) {
	f := newFixture(100)
	recent := f.now.Add(-2 * time.Minute)
	stale := f.now.Add(-10 * time.Minute)
	f.sensors.sensors = map[string]*models.Sensor{
		"a": {ID: "a", VenueID: "v-1", LastSeen: &recent, Status: "active"},
		"b": {ID: "b", VenueID: "v-1", LastSeen: &stale, Status: "active"},
		"c": {ID: "c", VenueID: "v-1", Status: "inactive"},
		"d": {ID: "d", VenueID: "v-2", LastSeen: &recent},
	}

	statuses, err := f.pipeline.GetVenueSensorStatus(context.Background(), "v-1")
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	online := map[string]bool{}
	for _, s := range statuses {
		online[s.ID] = s.IsOnline
	}
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": false}, online)
}

func TestDispatchTableCoversEnvironmentalKinds(t *testing.T) {
	for k := models.KindUnknown; k <= models.KindVibration; k++ {
		if k.IsEnvironmental() {
			_, ok := dispatchTable[k]
			assert.True(t, ok, fmt.Sprintf("missing handler for %s", k))
		}
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte(`{"sensorId":"s-1","readings":[{"type":"temperature","value":21.5,"unit":"C"}],"batteryLevel":80}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", p.SensorID)
	assert.Equal(t, 80, *p.BatteryLevel)

	for _, body := range []string{`not json`, `{"readings":[]}`, `{"sensorId":"s-1"}`} {
		_, err := DecodePayload([]byte(body))
		var perr *models.PayloadError
		assert.True(t, errors.As(err, &perr), body)
	}
}
