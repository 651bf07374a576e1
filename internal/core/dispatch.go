package core

import (
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (r *RoomActor) handleFrame(t Transport, f Frame) {
	e := r.conns.get(t)
	if e == nil {
		log.Debug().Str("module", "core.dispatch").Str("room", r.key.String()).Msg("frame from unregistered transport dropped")
		return
	}

	now := r.now()
	env, err := protocol.Parse(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.dispatch").Str("conn", string(e.rec.ID)).Msg("bad frame")
		r.send(e, protocol.ErrorMessage("invalid message format", now))
		return
	}
	e.rec.Touch(now)

	switch env.Type {
	case protocol.TypePing:
		r.send(e, protocol.PongMessage(now))
	case protocol.TypeJoinTable:
		r.handleJoinTable(e, env)
	case protocol.TypeOrderUpdate:
		r.broadcastOrderUpdate(f, env)
	case protocol.TypeKitchenStatus:
		r.handleKitchenStatus(e, f, env)
	default:
		log.Debug().Str("module", "core.dispatch").Str("conn", string(e.rec.ID)).Str("type", env.Type).Msg("unknown message type")
	}
}

func (r *RoomActor) handleJoinTable(e *entry, env *protocol.Envelope) {
	attrs, ok := e.rec.Attributes.(*domain.CustomerAttributes)
	if e.rec.Role != domain.RoleCustomer || !ok {
		r.monitor.RoleMismatch(r.key, e.rec.Role, env.Type)
		return
	}
	p, err := protocol.ParseJoinTable(env.Data)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.dispatch").Str("conn", string(e.rec.ID)).Msg("join_table ignored")
		return
	}
	attrs.TableID = p.TableID
	attrs.CustomerName = p.CustomerName

	msg, err := protocol.New(protocol.TypeCustomerJoined, protocol.CustomerJoined{
		ConnectionID: string(e.rec.ID),
		TableID:      p.TableID,
		CustomerName: p.CustomerName,
	}, r.now())
	if err != nil {
		log.Error().Err(err).Str("module", "core.dispatch").Msg("encode customer_joined")
		return
	}
	sent := r.sendToRole(domain.RoleAdmin, msg)
	log.Info().Str("module", "core.dispatch").Str("room", r.key.String()).Str("conn", string(e.rec.ID)).RawJSON("table", nonEmptyJSON(p.TableID)).Int("admins", sent).Msg("customer joined table")
}

func (r *RoomActor) handleKitchenStatus(e *entry, f Frame, env *protocol.Envelope) {
	if e.rec.Role != domain.RoleKitchen {
		r.monitor.RoleMismatch(r.key, e.rec.Role, env.Type)
		return
	}
	admins := r.sendToRole(domain.RoleAdmin, f)

	derived, err := protocol.Encode(protocol.Envelope{Type: protocol.TypeOrderStatusUpdate, Data: env.Data}, r.now())
	if err != nil {
		log.Error().Err(err).Str("module", "core.dispatch").Msg("encode order_status_update")
		return
	}
	customers := r.sendToRole(domain.RoleCustomer, derived)
	log.Debug().Str("module", "core.dispatch").Str("room", r.key.String()).Int("admins", admins).Int("customers", customers).Msg("kitchen status relayed")
}

func nonEmptyJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
