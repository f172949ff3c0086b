package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

// Rooms every connection may join. Per-user rooms are named by UserRoom.
const (
	RoomAdmin      = "admin"
	RoomSuperAdmin = "superadmin"
)

// Event names pushed to clients.
const (
	EventIncidentNew          = "incident:new"
	EventIncidentUpdate       = "incident:update"
	EventIncidentDelete       = "incident:delete"
	EventIncidentBulkResolve  = "incident:bulk-resolve"
	EventIncidentNotification = "incident:notification"
)

// Event is one frame delivered to every client in Room.
type Event struct {
	Name string      `json:"event"`
	Room string      `json:"room"`
	Data interface{} `json:"data"`
}

// Publisher fans an event out. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// UserRoom is the private room of a user.
func UserRoom(userID string) string {
	return "user_" + userID
}

// RoomsFor derives room membership from the authenticated identity.
func RoomsFor(userID string, role models.UserRole) []string {
	rooms := []string{UserRoom(userID)}
	switch role {
	case models.RoleAdmin:
		rooms = append(rooms, RoomAdmin)
	case models.RoleSuperAdmin:
		rooms = append(rooms, RoomAdmin, RoomSuperAdmin)
	}
	return rooms
}

type clientGauge interface {
	RealtimeClientDelta(delta int64)
}

// Client is one subscribed connection.
type Client struct {
	UserID string
	Rooms  []string
	send   chan Event
}

// Events returns the receive side of the client's buffer.
func (c *Client) Events() <-chan Event {
	return c.send
}

// Hub tracks room membership for connections on this instance.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger
	gauge  clientGauge
}

// NewHub constructs an empty hub. gauge may be nil.
func NewHub(logger *zap.Logger, gauge clientGauge) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{rooms: make(map[string]map[*Client]struct{}), logger: logger, gauge: gauge}
}

// Subscribe registers a client in the rooms its role grants.
func (h *Hub) Subscribe(userID string, role models.UserRole, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	client := &Client{UserID: userID, Rooms: RoomsFor(userID, role), send: make(chan Event, buffer)}

	h.mu.Lock()
	for _, room := range client.Rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[client] = struct{}{}
	}
	h.mu.Unlock()

	if h.gauge != nil {
		h.gauge.RealtimeClientDelta(1)
	}
	return client
}

// Unsubscribe removes the client and closes its channel.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	removed := false
	for _, room := range client.Rooms {
		members := h.rooms[room]
		if _, ok := members[client]; ok {
			delete(members, client)
			removed = true
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if removed {
		close(client.send)
	}
	h.mu.Unlock()

	if removed && h.gauge != nil {
		h.gauge.RealtimeClientDelta(-1)
	}
}

// Publish delivers evt to local members of its room. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[evt.Room] {
		select {
		case client.send <- evt:
		default:
			h.logger.Warn("dropping realtime event for slow client",
				zap.String("event", evt.Name), zap.String("room", evt.Room), zap.String("user_id", client.UserID))
		}
	}
}

// RoomSize reports how many local clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// NopPublisher discards events; used when realtime is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
