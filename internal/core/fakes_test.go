package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("full")

type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	sendErr error
}

func (f *fakeTransport) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, append([]byte(nil), fr...))
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) isClosed() bool { return !f.IsOpen() }

func (f *fakeTransport) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeTransport) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, fr := range f.received() {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(fr, &env))
		out = append(out, env)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testRoom struct {
	*RoomActor
	clock    *fakeClock
	counters *Counters
	key      domain.RoomKey
}

func newTestRoom(t *testing.T) *testRoom {
	t.Helper()
	clock := newFakeClock()
	counters := &Counters{}
	actor := NewRoomActor(ActorConfig{Now: clock.Now, Monitor: counters})
	t.Cleanup(actor.Stop)
	return &testRoom{
		RoomActor: actor,
		clock:     clock,
		counters:  counters,
		key:       domain.RoomKey{Type: "kitchen", ID: "42"},
	}
}

// join registers a fresh transport with role and drops the connected ack.
func (r *testRoom) join(t *testing.T, role domain.Role) (*fakeTransport, ConnectionInfo) {
	t.Helper()
	tr := &fakeTransport{}
	info, err := r.Register(tr, role, r.key, "")
	require.NoError(t, err)
	tr.reset()
	return tr, info
}

func (r *testRoom) send(t *testing.T, tr *fakeTransport, frame string) {
	t.Helper()
	require.NoError(t, r.HandleFrame(tr, Frame(frame)))
}
