package core

import (
	"sort"
	"time"
)

func (r *RoomActor) stats() RoomStats {
	s := RoomStats{
		RoomInfo:    r.key,
		Connections: make([]ConnectionInfo, 0, r.conns.len()),
	}
	var oldest time.Time
	r.conns.forEachAll(func(e *entry) {
		s.Connections = append(s.Connections, infoOf(e.rec))
		if oldest.IsZero() || e.rec.ConnectedAt.Before(oldest) {
			oldest = e.rec.ConnectedAt
		}
	})
	s.ConnectionCount = len(s.Connections)
	if !oldest.IsZero() {
		s.Uptime = r.now().Sub(oldest).Milliseconds()
	}
	sort.Slice(s.Connections, func(i, j int) bool {
		a, b := s.Connections[i], s.Connections[j]
		if !a.ConnectedAt.Equal(b.ConnectedAt) {
			return a.ConnectedAt.Before(b.ConnectedAt)
		}
		return a.ID < b.ID
	})
	return s
}
