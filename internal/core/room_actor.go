package core

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomStopped       = errors.New("room stopped")
	ErrRoomKeyConflict   = errors.New("room key conflict")
	ErrInvalidRoomKey    = errors.New("invalid room key")
	ErrAlreadyRegistered = errors.New("transport already registered")
)

// DefaultIdleTimeout is the sweep threshold when none is configured.
const DefaultIdleTimeout = 30 * time.Minute

const defaultInboxSize = 64

type ActorConfig struct {
	// IdleTimeout is how long a connection may stay silent before a sweep evicts it.
	IdleTimeout time.Duration
	InboxSize   int
	Now         func() time.Time
	Monitor     Monitor
}

type command struct {
	fn   func()
	done chan struct{}
}

// RoomActor owns the connection registry of exactly one room.
// A single goroutine drains the inbox; every field below the marker is
// touched only from there, so the registry takes no locks.
type RoomActor struct {
	idleTimeout time.Duration
	now         func() time.Time
	monitor     Monitor

	inbox    chan command
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// owned by run
	key     domain.RoomKey
	conns   *registry
	retired bool
}

func NewRoomActor(cfg ActorConfig) *RoomActor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Monitor == nil {
		cfg.Monitor = NopMonitor{}
	}
	r := &RoomActor{
		idleTimeout: cfg.IdleTimeout,
		now:         cfg.Now,
		monitor:     cfg.Monitor,
		inbox:       make(chan command, cfg.InboxSize),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		conns:       newRegistry(),
	}
	go r.run()
	return r
}

func (r *RoomActor) run() {
	defer close(r.stopped)
	for {
		select {
		case cmd := <-r.inbox:
			cmd.fn()
			close(cmd.done)
		case <-r.quit:
			r.closeAll()
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish.
func (r *RoomActor) do(fn func()) error {
	done := make(chan struct{})
	select {
	case r.inbox <- command{fn: fn, done: done}:
	case <-r.stopped:
		return ErrRoomStopped
	}
	select {
	case <-done:
		return nil
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrRoomStopped
		}
	}
}

// Stop closes every held transport and ends the actor. Safe to call twice.
func (r *RoomActor) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.stopped
}

func (r *RoomActor) closeAll() {
	n := 0
	r.conns.forEachAll(func(e *entry) {
		e.t.Close()
		n++
	})
	r.conns.clear()
	log.Info().Str("module", "core.room").Str("room", r.key.String()).Int("closed", n).Msg("room stopped")
}

func (r *RoomActor) Key() (domain.RoomKey, error) {
	var key domain.RoomKey
	err := r.do(func() { key = r.key })
	return key, err
}

func (r *RoomActor) Len() (int, error) {
	var n int
	err := r.do(func() { n = r.conns.len() })
	return n, err
}

func (r *RoomActor) Register(t Transport, role domain.Role, key domain.RoomKey, clientToken string) (ConnectionInfo, error) {
	var (
		info ConnectionInfo
		rerr error
	)
	if err := r.do(func() { info, rerr = r.register(t, role, key, clientToken) }); err != nil {
		return ConnectionInfo{}, err
	}
	return info, rerr
}

func (r *RoomActor) Unregister(t Transport) error {
	return r.do(func() { r.unregister(t) })
}

func (r *RoomActor) HandleFrame(t Transport, f Frame) error {
	return r.do(func() { r.handleFrame(t, f) })
}

func (r *RoomActor) Broadcast(f Frame) (int, error) {
	var n int
	err := r.do(func() { n = r.broadcastAll(f) })
	return n, err
}

func (r *RoomActor) BroadcastOrderUpdate(f Frame) (int, error) {
	var n int
	err := r.do(func() { n = r.broadcastOrderFrame(f) })
	return n, err
}

func (r *RoomActor) Stats() (RoomStats, error) {
	var s RoomStats
	err := r.do(func() { s = r.stats() })
	return s, err
}

// StopIfEmpty stops the actor when it holds no connections. Once it has
// decided to retire, no registration can slip in before the stop.
func (r *RoomActor) StopIfEmpty() bool {
	var empty bool
	err := r.do(func() {
		if r.conns.len() == 0 {
			r.retired = true
			empty = true
		}
	})
	if err != nil {
		return true
	}
	if empty {
		r.Stop()
	}
	return empty
}

func (r *RoomActor) Sweep(now time.Time) (int, error) {
	var n int
	err := r.do(func() { n = r.sweep(now) })
	return n, err
}

var _ RoomService = (*RoomActor)(nil)
