package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl keeps at most one live actor per room key.
type RoomManagerImpl struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomKey]core.RoomService
	newRoom func() core.RoomService
}

func NewRoomManager(cfg core.ActorConfig) *RoomManagerImpl {
	return NewRoomManagerWith(func() core.RoomService { return core.NewRoomActor(cfg) })
}

// NewRoomManagerWith builds rooms through newRoom, for tests and custom actors.
func NewRoomManagerWith(newRoom func() core.RoomService) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms:   make(map[domain.RoomKey]core.RoomService),
		newRoom: newRoom,
	}
}

func (f *RoomManagerImpl) GetOrCreate(key domain.RoomKey) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[key]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[key]; ok {
		return room
	}
	room = f.newRoom()
	f.rooms[key] = room
	log.Info().Str("module", "app.rooms").Str("room", key.String()).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(key domain.RoomKey) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[key]
	return room, ok
}

func (f *RoomManagerImpl) snapshot() map[domain.RoomKey]core.RoomService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[domain.RoomKey]core.RoomService, len(f.rooms))
	for k, r := range f.rooms {
		out[k] = r
	}
	return out
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	rooms := f.snapshot()
	out := make([]core.RoomInfo, 0, len(rooms))
	for key, r := range rooms {
		n, err := r.Len()
		if err != nil {
			continue
		}
		out = append(out, core.RoomInfo{Key: key, ConnectionCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// StopRoom closes every connection of the room and forgets it.
func (f *RoomManagerImpl) StopRoom(key domain.RoomKey) bool {
	f.mu.Lock()
	room, ok := f.rooms[key]
	delete(f.rooms, key)
	f.mu.Unlock()
	if !ok {
		return false
	}
	room.Stop()
	log.Info().Str("module", "app.rooms").Str("room", key.String()).Msg("room stopped")
	return true
}

func (f *RoomManagerImpl) SweepAll(now time.Time) int {
	evicted := 0
	for key, room := range f.snapshot() {
		n, err := room.Sweep(now)
		if err != nil {
			continue
		}
		evicted += n
		f.retireIfEmpty(key, room)
	}
	if evicted > 0 {
		log.Info().Str("module", "app.rooms").Int("evicted", evicted).Msg("sweep finished")
	}
	return evicted
}

// retireIfEmpty runs under the write lock so GetOrCreate never hands out an
// actor that is about to stop.
func (f *RoomManagerImpl) retireIfEmpty(key domain.RoomKey, room core.RoomService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[key] != room {
		return
	}
	if room.StopIfEmpty() {
		delete(f.rooms, key)
		log.Debug().Str("module", "app.rooms").Str("room", key.String()).Msg("empty room retired")
	}
}

// StopAll stops every room, used on shutdown.
func (f *RoomManagerImpl) StopAll() {
	f.mu.Lock()
	rooms := f.rooms
	f.rooms = make(map[domain.RoomKey]core.RoomService)
	f.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)
