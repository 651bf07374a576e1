package core

import (
	"time"

	"github.com/dkeye/orderrelay/internal/domain"
)

// ConnectionInfo is a read-only view of a connection record (no transport fields).
type ConnectionInfo struct {
	ID           domain.ConnectionID `json:"id"`
	Role         domain.Role         `json:"role"`
	ConnectedAt  time.Time           `json:"connectedAt"`
	LastActivity time.Time           `json:"lastActivity"`
	Attributes   domain.Attributes   `json:"attributes"`
}

// RoomStats is the introspection answer of one room.
// Uptime is in milliseconds since the oldest held connection, 0 when empty.
type RoomStats struct {
	RoomInfo        domain.RoomKey   `json:"roomInfo"`
	ConnectionCount int              `json:"connectionCount"`
	Connections     []ConnectionInfo `json:"connections"`
	Uptime          int64            `json:"uptime"`
}

// RoomService is the core-facing API of a room actor.
// Every method is serialized on the actor; all return ErrRoomStopped once
// the actor is stopped.
type RoomService interface {
	// Key is zero until the first connection is registered.
	Key() (domain.RoomKey, error)
	Len() (int, error)

	Register(t Transport, role domain.Role, key domain.RoomKey, clientToken string) (ConnectionInfo, error)
	Unregister(t Transport) error
	HandleFrame(t Transport, f Frame) error

	// Broadcast sends f verbatim to every connection.
	Broadcast(f Frame) (int, error)
	// BroadcastOrderUpdate runs the role-scoped path for an order_update envelope.
	BroadcastOrderUpdate(f Frame) (int, error)

	Stats() (RoomStats, error)
	Sweep(now time.Time) (int, error)
	// StopIfEmpty retires the actor when it holds no connections and
	// reports whether it is stopped.
	StopIfEmpty() bool
	Stop()
}

type RoomInfo struct {
	Key             domain.RoomKey `json:"room"`
	ConnectionCount int            `json:"connectionCount"`
}

// RoomManager resolves a room key to its single live actor.
type RoomManager interface {
	GetOrCreate(key domain.RoomKey) RoomService
	Get(key domain.RoomKey) (RoomService, bool)
	List() []RoomInfo
	StopRoom(key domain.RoomKey) bool
	// SweepAll runs the idle sweep on every room and retires empty ones.
	SweepAll(now time.Time) int
}
