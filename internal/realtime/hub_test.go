package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

type countingGauge struct{ n int64 }

func (g *countingGauge) RealtimeClientDelta(delta int64) { g.n += delta }

func TestRoomsFor(t *testing.T) {
	assert.Equal(t, []string{"user_u1"}, RoomsFor("u1", models.RoleUser))
	assert.Equal(t, []string{"user_u2", RoomAdmin}, RoomsFor("u2", models.RoleAdmin))
	assert.Equal(t, []string{"user_u3", RoomAdmin, RoomSuperAdmin}, RoomsFor("u3", models.RoleSuperAdmin))
}

func TestHubDeliversByRoom(t *testing.T) {
	gauge := &countingGauge{}
	hub := NewHub(nil, gauge)
	user := hub.Subscribe("u1", models.RoleUser, 4)
	admin := hub.Subscribe("a1", models.RoleAdmin, 4)
	super := hub.Subscribe("s1", models.RoleSuperAdmin, 4)
	assert.EqualValues(t, 3, gauge.n)

	hub.Publish(context.Background(), Event{Name: EventIncidentNew, Room: RoomAdmin, Data: "x"})
	hub.Publish(context.Background(), Event{Name: EventIncidentNotification, Room: UserRoom("u1"), Data: "y"})

	assert.Len(t, admin.Events(), 1)
	assert.Len(t, super.Events(), 1)
	require.Len(t, user.Events(), 1)
	evt := <-user.Events()
	assert.Equal(t, EventIncidentNotification, evt.Name)

	hub.Unsubscribe(user)
	hub.Unsubscribe(user)
	_, open := <-user.Events()
	assert.False(t, open)
	assert.Equal(t, 0, hub.RoomSize(UserRoom("u1")))
	assert.Equal(t, 2, hub.RoomSize(RoomAdmin))
	assert.EqualValues(t, 2, gauge.n)
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	client := hub.Subscribe("a1", models.RoleAdmin, 1)

	hub.Publish(context.Background(), Event{Name: "one", Room: RoomAdmin})
	hub.Publish(context.Background(), Event{Name: "two", Room: RoomAdmin})

	require.Len(t, client.Events(), 1)
	assert.Equal(t, "one", (<-client.Events()).Name)
}

func TestRedisBridgeRelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	const channel = "incident-desk:test"

	hubA, hubB := NewHub(nil, nil), NewHub(nil, nil)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientA.Close()
	defer clientB.Close()
	bridgeA := NewRedisBridge(clientA, channel, hubA, nil)
	bridgeB := NewRedisBridge(clientB, channel, hubB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridgeA.Run(ctx) }()
	go func() { _ = bridgeB.Run(ctx) }()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	localAdmin := hubA.Subscribe("a1", models.RoleAdmin, 4)
	remoteAdmin := hubB.Subscribe("a2", models.RoleAdmin, 4)

	bridgeA.Publish(ctx, Event{Name: EventIncidentUpdate, Room: RoomAdmin, Data: map[string]string{"incidentId": "i1"}})

	select {
	case evt := <-remoteAdmin.Events():
		assert.Equal(t, EventIncidentUpdate, evt.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("remote instance did not receive event")
	}

	require.Len(t, localAdmin.Events(), 1)
	<-localAdmin.Events()
	// the echo from redis must not be delivered twice locally
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localAdmin.Events(), 0)
}
