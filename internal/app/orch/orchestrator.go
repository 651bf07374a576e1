package orch

import (
	"errors"
	"time"

	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// connectAttempts bounds re-resolution when a room retires under us.
const connectAttempts = 3

// Orchestrator is the edge flow between transports and room actors.
type Orchestrator struct {
	Rooms   core.RoomManager
	Monitor *core.Counters
}

// Connect resolves the actor for key and registers t with it.
func (o *Orchestrator) Connect(key domain.RoomKey, role domain.Role, t core.Transport, clientToken string) (core.RoomService, core.ConnectionInfo, error) {
	var err error
	for i := 0; i < connectAttempts; i++ {
		room := o.Rooms.GetOrCreate(key)
		var info core.ConnectionInfo
		info, err = room.Register(t, role, key, clientToken)
		if err == nil {
			return room, info, nil
		}
		if !errors.Is(err, core.ErrRoomStopped) {
			break
		}
		log.Debug().Str("module", "app.orch").Str("room", key.String()).Msg("room retired during connect, retrying")
	}
	return nil, core.ConnectionInfo{}, err
}

func (o *Orchestrator) OnFrame(room core.RoomService, t core.Transport, data core.Frame) {
	if err := room.HandleFrame(t, data); err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Msg("frame dropped")
		t.Close()
	}
}

func (o *Orchestrator) OnDisconnect(room core.RoomService, t core.Transport) {
	// A stopped room already forgot the transport.
	_ = room.Unregister(t)
}

// Broadcast relays an envelope verbatim to every connection of key.
// A room nobody is connected to has no recipients.
func (o *Orchestrator) Broadcast(key domain.RoomKey, frame core.Frame) (int, error) {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return 0, nil
	}
	return ignoreStopped(room.Broadcast(frame))
}

// OrderUpdate runs the role-scoped path for an order_update envelope.
func (o *Orchestrator) OrderUpdate(key domain.RoomKey, frame core.Frame) (int, error) {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return 0, nil
	}
	return ignoreStopped(room.BroadcastOrderUpdate(frame))
}

func (o *Orchestrator) Stats(key domain.RoomKey) (core.RoomStats, error) {
	empty := core.RoomStats{RoomInfo: key, Connections: []core.ConnectionInfo{}}
	room, ok := o.Rooms.Get(key)
	if !ok {
		return empty, nil
	}
	stats, err := room.Stats()
	if errors.Is(err, core.ErrRoomStopped) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}
	if stats.RoomInfo.IsZero() {
		stats.RoomInfo = key
	}
	return stats, nil
}

func (o *Orchestrator) EvictRoom(key domain.RoomKey) bool {
	return o.Rooms.StopRoom(key)
}

func (o *Orchestrator) SweepAll(now time.Time) int {
	return o.Rooms.SweepAll(now)
}

func (o *Orchestrator) Counters() core.CountersSnapshot {
	if o.Monitor == nil {
		return core.CountersSnapshot{}
	}
	return o.Monitor.Snapshot()
}

func ignoreStopped(n int, err error) (int, error) {
	if errors.Is(err, core.ErrRoomStopped) {
		return 0, nil
	}
	return n, err
}
