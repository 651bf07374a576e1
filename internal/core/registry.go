package core

import (
	"fmt"

	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

type entry struct {
	t   Transport
	rec *domain.ConnectionRecord
}

// registry maps live transports to their records. Not safe for concurrent
// use; only the actor goroutine touches it.
type registry struct {
	byTransport map[Transport]*entry
}

func newRegistry() *registry {
	return &registry{byTransport: make(map[Transport]*entry)}
}

func (g *registry) len() int { return len(g.byTransport) }

func (g *registry) get(t Transport) *entry { return g.byTransport[t] }

func (g *registry) add(t Transport, rec *domain.ConnectionRecord) *entry {
	e := &entry{t: t, rec: rec}
	g.byTransport[t] = e
	return e
}

func (g *registry) remove(t Transport) (*entry, bool) {
	e, ok := g.byTransport[t]
	if ok {
		delete(g.byTransport, t)
	}
	return e, ok
}

func (g *registry) clear() { clear(g.byTransport) }

func (g *registry) forEachAll(fn func(*entry)) {
	for _, e := range g.byTransport {
		fn(e)
	}
}

func (g *registry) forEachByRole(role domain.Role, fn func(*entry)) {
	for _, e := range g.byTransport {
		if e.rec.Role == role {
			fn(e)
		}
	}
}

func (r *RoomActor) register(t Transport, role domain.Role, key domain.RoomKey, clientToken string) (ConnectionInfo, error) {
	if r.retired {
		return ConnectionInfo{}, ErrRoomStopped
	}
	if key.IsZero() {
		return ConnectionInfo{}, ErrInvalidRoomKey
	}
	if !r.key.IsZero() && r.key != key {
		log.Error().Str("module", "core.room").Str("room", r.key.String()).Str("got", key.String()).Msg("misrouted connection rejected")
		return ConnectionInfo{}, fmt.Errorf("%w: room %s got %s", ErrRoomKeyConflict, r.key, key)
	}
	if r.conns.get(t) != nil {
		return ConnectionInfo{}, ErrAlreadyRegistered
	}
	if r.key.IsZero() {
		r.key = key
	}

	now := r.now()
	rec := domain.NewConnectionRecord(role, key, now)
	rec.ClientToken = clientToken
	e := r.conns.add(t, rec)

	ack, err := protocol.New(protocol.TypeConnected, protocol.Connected{
		ConnectionID: string(rec.ID),
		RoomType:     string(key.Type),
		RoomID:       string(key.ID),
		Timestamp:    protocol.FormatTime(now),
	}, now)
	if err == nil {
		r.send(e, ack)
	}

	log.Info().Str("module", "core.room").Str("room", key.String()).Str("conn", string(rec.ID)).Str("role", string(role)).Int("connections", r.conns.len()).Msg("connection registered")
	return infoOf(rec), nil
}

func (r *RoomActor) unregister(t Transport) {
	e, ok := r.conns.remove(t)
	if !ok {
		return
	}
	log.Info().Str("module", "core.room").Str("room", r.key.String()).Str("conn", string(e.rec.ID)).Int("connections", r.conns.len()).Msg("connection removed")
}

// send delivers f to one connection, skipping it if the transport is no
// longer open or refuses the frame.
func (r *RoomActor) send(e *entry, f Frame) bool {
	if !e.t.IsOpen() {
		return false
	}
	if err := e.t.TrySend(f); err != nil {
		r.monitor.DeliveryFailed(r.key, e.rec.ID, err)
		return false
	}
	return true
}

func infoOf(rec *domain.ConnectionRecord) ConnectionInfo {
	return ConnectionInfo{
		ID:           rec.ID,
		Role:         rec.Role,
		ConnectedAt:  rec.ConnectedAt,
		LastActivity: rec.LastActivityAt,
		Attributes:   domain.CloneAttributes(rec.Attributes),
	}
}
