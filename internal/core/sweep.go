package core

import (
	"time"

	"github.com/rs/zerolog/log"
)

// sweep closes and forgets every connection silent for longer than the
// idle timeout.
func (r *RoomActor) sweep(now time.Time) int {
	var idle []*entry
	r.conns.forEachAll(func(e *entry) {
		if e.rec.IdleSince(now) > r.idleTimeout {
			idle = append(idle, e)
		}
	})
	for _, e := range idle {
		e.t.Close()
		r.conns.remove(e.t)
		log.Info().Str("module", "core.sweep").Str("room", r.key.String()).Str("conn", string(e.rec.ID)).Dur("idle", e.rec.IdleSince(now)).Msg("idle connection evicted")
	}
	return len(idle)
}
