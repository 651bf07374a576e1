package core

import (
	"sync/atomic"

	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Monitor observes soft failures the room tolerates silently.
type Monitor interface {
	RoleMismatch(room domain.RoomKey, role domain.Role, msgType string)
	DeliveryFailed(room domain.RoomKey, id domain.ConnectionID, err error)
}

type NopMonitor struct{}

func (NopMonitor) RoleMismatch(domain.RoomKey, domain.Role, string)         {}
func (NopMonitor) DeliveryFailed(domain.RoomKey, domain.ConnectionID, error) {}

// Counters is a Monitor keeping process-wide totals.
type Counters struct {
	roleMismatches   atomic.Int64
	deliveryFailures atomic.Int64
}

type CountersSnapshot struct {
	RoleMismatches   int64 `json:"roleMismatches"`
	DeliveryFailures int64 `json:"deliveryFailures"`
}

func (c *Counters) RoleMismatch(room domain.RoomKey, role domain.Role, msgType string) {
	c.roleMismatches.Add(1)
	log.Debug().Str("module", "core.monitor").Str("room", room.String()).Str("role", string(role)).Str("type", msgType).Msg("role mismatch ignored")
}

func (c *Counters) DeliveryFailed(room domain.RoomKey, id domain.ConnectionID, err error) {
	c.deliveryFailures.Add(1)
	log.Debug().Err(err).Str("module", "core.monitor").Str("room", room.String()).Str("conn", string(id)).Msg("delivery failed")
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		RoleMismatches:   c.roleMismatches.Load(),
		DeliveryFailures: c.deliveryFailures.Load(),
	}
}
