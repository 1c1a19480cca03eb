package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

func TestHub_SubscriberIsolation(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	var first, third int32
	hub.Subscribe("v-1", func(u models.VenueUpdate) error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	hub.Subscribe("v-1", func(u models.VenueUpdate) error {
		panic("boom")
	})
	hub.Subscribe("v-1", func(u models.VenueUpdate) error {
		atomic.AddInt32(&third, 1)
		return nil
	})

	hub.BroadcastCapacityUpdate(context.Background(), "v-1", "z-1", models.CapacityUpdate{Occupancy: 40, Capacity: 50, Utilization: 80})

	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&third))
}

func TestHub_ErrorReturningSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	var got int32
	hub.Subscribe("v-1", func(u models.VenueUpdate) error { return errors.New("client gone") })
	hub.Subscribe("v-1", func(u models.VenueUpdate) error {
		atomic.AddInt32(&got, 1)
		return nil
	})

	delivered := hub.Deliver(models.VenueUpdate{Type: models.UpdateSensor, VenueID: "v-1"})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int32(1), got)
}

func TestHub_OnlyTargetVenue(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	var other int32
	hub.Subscribe("v-2", func(u models.VenueUpdate) error {
		atomic.AddInt32(&other, 1)
		return nil
	})

	hub.BroadcastSensorUpdate(context.Background(), "v-1", models.SensorPayload{SensorID: "s-1"})
	assert.Equal(t, int32(0), other)
}

func TestHub_UnsubscribeRemovesEmptyVenue(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	unsubA := hub.Subscribe("v-1", func(models.VenueUpdate) error { return nil })
	unsubB := hub.Subscribe("v-1", func(models.VenueUpdate) error { return nil })
	assert.Equal(t, 2, hub.SubscriberCount("v-1"))

	unsubA()
	unsubA()
	assert.Equal(t, 1, hub.SubscriberCount("v-1"))
	assert.True(t, hub.HasVenue("v-1"))

	unsubB()
	assert.False(t, hub.HasVenue("v-1"))
}

func TestHub_UnsubscribeDuringBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	var unsub func()
	var calls int32
	unsub = hub.Subscribe("v-1", func(models.VenueUpdate) error {
		atomic.AddInt32(&calls, 1)
		unsub()
		return nil
	})

	hub.BroadcastSensorUpdate(context.Background(), "v-1", models.SensorPayload{})
	hub.BroadcastSensorUpdate(context.Background(), "v-1", models.SensorPayload{})
	assert.Equal(t, int32(1), calls)
}

func TestHub_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := hub.Subscribe("v-1", func(models.VenueUpdate) error { return nil })
			unsub()
		}()
		go func() {
			defer wg.Done()
			hub.BroadcastSensorUpdate(context.Background(), "v-1", models.SensorPayload{})
		}()
	}
	wg.Wait()
	assert.False(t, hub.HasVenue("v-1"))
}

type recordingForwarder struct {
	mu      sync.Mutex
	updates []models.VenueUpdate
}

func (f *recordingForwarder) Forward(_ context.Context, u models.VenueUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func TestHub_ForwardsToTransport(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	fwd := &recordingForwarder{}
	hub.SetForwarder(fwd)

	zone := "z-1"
	hub.BroadcastCheckinUpdate(context.Background(), "v-1", models.CheckinUpdate{TicketID: "t-1", ZoneID: &zone})

	require.Len(t, fwd.updates, 1)
	assert.Equal(t, models.UpdateCheckin, fwd.updates[0].Type)
	assert.Equal(t, "z-1", fwd.updates[0].ZoneID)
}
