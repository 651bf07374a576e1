package core

import (
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (r *RoomActor) sendToRole(role domain.Role, f Frame) int {
	sent := 0
	r.conns.forEachByRole(role, func(e *entry) {
		if r.send(e, f) {
			sent++
		}
	})
	return sent
}

// broadcastAll is the raw path: f goes to everyone regardless of role.
func (r *RoomActor) broadcastAll(f Frame) int {
	sent := 0
	r.conns.forEachAll(func(e *entry) {
		if r.send(e, f) {
			sent++
		}
	})
	log.Debug().Str("module", "core.broadcast").Str("room", r.key.String()).Int("sent_to", sent).Msg("raw broadcast")
	return sent
}

// broadcastOrderFrame parses f before taking the role-scoped path. A frame
// that is not a valid envelope reaches nobody.
func (r *RoomActor) broadcastOrderFrame(f Frame) int {
	env, err := protocol.Parse(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.broadcast").Str("room", r.key.String()).Msg("order update rejected")
		return 0
	}
	return r.broadcastOrderUpdate(f, env)
}

// broadcastOrderUpdate sends the unmodified frame to admin and kitchen
// connections and a reduced order_status_update to customers seated at the
// update's table.
func (r *RoomActor) broadcastOrderUpdate(f Frame, env *protocol.Envelope) int {
	update, err := protocol.ParseOrderUpdate(env.Data)
	var shaped Frame
	if err != nil {
		log.Warn().Err(err).Str("module", "core.broadcast").Str("room", r.key.String()).Msg("order update not shaped for customers")
	} else if shaped, err = protocol.New(protocol.TypeOrderStatusUpdate, update.ForCustomer(), r.now()); err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Msg("encode order_status_update")
		shaped = nil
	}

	sent, customers := 0, 0
	r.conns.forEachAll(func(e *entry) {
		if e.rec.Role.IsStaff() {
			if r.send(e, f) {
				sent++
			}
			return
		}
		if shaped == nil {
			return
		}
		tableID, ok := e.rec.TableID()
		if !ok || !domain.SameTableID(tableID, update.TableID) {
			return
		}
		if r.send(e, shaped) {
			sent++
			customers++
		}
	})
	log.Debug().Str("module", "core.broadcast").Str("room", r.key.String()).Int("sent_to", sent).Int("customers", customers).Msg("order update")
	return sent
}
