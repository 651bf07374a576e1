package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/dkeye/orderrelay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_SendsConnected(t *testing.T) {
	room := newTestRoom(t)
	tr := &fakeTransport{}

	info, err := room.Register(tr, domain.RoleAdmin, room.key, "ct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, info.Role)
	assert.Equal(t, room.clock.Now(), info.ConnectedAt)

	envs := tr.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, protocol.TypeConnected, envs[0].Type)

	var data protocol.Connected
	require.NoError(t, json.Unmarshal(envs[0].Data, &data))
	assert.Equal(t, string(info.ID), data.ConnectionID)
	assert.Equal(t, "kitchen", data.RoomType)
	assert.Equal(t, "42", data.RoomID)
	assert.Equal(t, protocol.FormatTime(room.clock.Now()), data.Timestamp)

	key, err := room.Key()
	require.NoError(t, err)
	assert.Equal(t, room.key, key)
}

func TestRegister_RejectsConflictingRoomKey(t *testing.T) {
	room := newTestRoom(t)
	room.join(t, domain.RoleAdmin)

	stray := &fakeTransport{}
	_, err := room.Register(stray, domain.RoleCustomer, domain.RoomKey{Type: "kitchen", ID: "43"}, "")
	assert.ErrorIs(t, err, ErrRoomKeyConflict)
	assert.Empty(t, stray.received())

	n, err := room.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	key, err := room.Key()
	require.NoError(t, err)
	assert.Equal(t, room.key, key, "established key must not change")
}

func TestRegister_RejectsZeroKeyAndDuplicates(t *testing.T) {
	room := newTestRoom(t)

	_, err := room.Register(&fakeTransport{}, domain.RoleAdmin, domain.RoomKey{}, "")
	assert.ErrorIs(t, err, ErrInvalidRoomKey)

	tr, _ := room.join(t, domain.RoleAdmin)
	_, err = room.Register(tr, domain.RoleAdmin, room.key, "")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestUnregister_Idempotent(t *testing.T) {
	room := newTestRoom(t)
	a, _ := room.join(t, domain.RoleAdmin)
	room.join(t, domain.RoleKitchen)

	require.NoError(t, room.Unregister(a))
	n, _ := room.Len()
	assert.Equal(t, 1, n)

	require.NoError(t, room.Unregister(a))
	require.NoError(t, room.Unregister(&fakeTransport{}))
	n, _ = room.Len()
	assert.Equal(t, 1, n)
}

func TestHandleFrame_PingPong(t *testing.T) {
	room := newTestRoom(t)
	a, _ := room.join(t, domain.RoleCustomer)
	b, _ := room.join(t, domain.RoleAdmin)

	room.clock.Advance(time.Second)
	room.send(t, a, `{"type":"ping"}`)

	envs := a.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, protocol.TypePong, envs[0].Type)
	assert.JSONEq(t, fmt.Sprintf("%q", protocol.FormatTime(room.clock.Now())), string(envs[0].Timestamp))
	assert.Empty(t, b.received())
}

func TestHandleFrame_ParseFailureIsolation(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{name: "invalid json", frame: `{"type":`},
		{name: "missing type", frame: `{"data":{"orderId":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := newTestRoom(t)
			a, _ := room.join(t, domain.RoleKitchen)
			b, _ := room.join(t, domain.RoleAdmin)
			c, _ := room.join(t, domain.RoleCustomer)

			room.send(t, a, tt.frame)

			envs := a.envelopes(t)
			require.Len(t, envs, 1)
			assert.Equal(t, protocol.TypeError, envs[0].Type)
			assert.False(t, a.isClosed(), "connection stays open")
			assert.Empty(t, b.received())
			assert.Empty(t, c.received())

			n, _ := room.Len()
			assert.Equal(t, 3, n)
		})
	}
}

func TestHandleFrame_JoinTable(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	kitchen, _ := room.join(t, domain.RoleKitchen)
	cust, info := room.join(t, domain.RoleCustomer)

	room.send(t, cust, `{"type":"join_table","data":{"tableId":"5","customerName":"Ana"}}`)

	envs := admin.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, protocol.TypeCustomerJoined, envs[0].Type)
	assert.JSONEq(t, fmt.Sprintf(`{"connectionId":%q,"tableId":"5","customerName":"Ana"}`, info.ID), string(envs[0].Data))
	assert.Empty(t, kitchen.received())
	assert.Empty(t, cust.received())

	stats, err := room.Stats()
	require.NoError(t, err)
	for _, c := range stats.Connections {
		if c.ID != info.ID {
			continue
		}
		attrs, ok := c.Attributes.(*domain.CustomerAttributes)
		require.True(t, ok)
		assert.JSONEq(t, `"5"`, string(attrs.TableID))
		assert.Equal(t, "Ana", attrs.CustomerName)
	}
}

func TestHandleFrame_RoleMismatchIgnored(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	cust, _ := room.join(t, domain.RoleCustomer)

	room.send(t, admin, `{"type":"join_table","data":{"tableId":"5"}}`)
	room.send(t, cust, `{"type":"kitchen_status","data":{"orderId":1,"status":"ready"}}`)

	assert.Empty(t, admin.received())
	assert.Empty(t, cust.received())
	assert.Equal(t, int64(2), room.counters.Snapshot().RoleMismatches)
	n, _ := room.Len()
	assert.Equal(t, 2, n)
}

func TestHandleFrame_UnknownTypeTouchesActivity(t *testing.T) {
	room := newTestRoom(t)
	a, info := room.join(t, domain.RoleAdmin)
	b, _ := room.join(t, domain.RoleKitchen)

	room.clock.Advance(time.Minute)
	room.send(t, a, `{"type":"table_cleaned","data":{}}`)

	assert.Empty(t, a.received())
	assert.Empty(t, b.received())

	stats, err := room.Stats()
	require.NoError(t, err)
	for _, c := range stats.Connections {
		if c.ID == info.ID {
			assert.Equal(t, room.clock.Now(), c.LastActivity)
		}
	}
}

func TestHandleFrame_UnregisteredTransportDropped(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	ghost := &fakeTransport{}

	room.send(t, ghost, `{"type":"order_update","data":{"orderId":1,"status":"ready","tableId":"5"}}`)

	assert.Empty(t, ghost.received())
	assert.Empty(t, admin.received())
}

func TestOrderUpdate_RoleScopedScenario(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	cust5, _ := room.join(t, domain.RoleCustomer)
	cust7, _ := room.join(t, domain.RoleCustomer)
	loner, _ := room.join(t, domain.RoleCustomer)
	room.send(t, cust5, `{"type":"join_table","data":{"tableId":"5","customerName":"A"}}`)
	room.send(t, cust7, `{"type":"join_table","data":{"tableId":"7","customerName":"B"}}`)
	admin.reset()

	frame := `{"type":"order_update","data":{"orderId":9,"status":"ready","tableId":"5"}}`
	n, err := room.BroadcastOrderUpdate(Frame(frame))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := admin.received()
	require.Len(t, got, 1)
	assert.Equal(t, frame, string(got[0]), "staff receive the payload byte-for-byte")

	envs := cust5.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, protocol.TypeOrderStatusUpdate, envs[0].Type)
	assert.JSONEq(t, `{"orderId":9,"status":"ready","message":"your order is ready"}`, string(envs[0].Data))

	assert.Empty(t, cust7.received())
	assert.Empty(t, loner.received())
}

func TestOrderUpdate_FromSocketReachesKitchenAndSender(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	kitchen, _ := room.join(t, domain.RoleKitchen)
	cust, _ := room.join(t, domain.RoleCustomer)
	room.send(t, cust, `{"type":"join_table","data":{"tableId":5}}`)
	admin.reset()

	frame := `{"type":"order_update","data":{"orderId":3,"status":"served","tableId":"5"}}`
	room.send(t, kitchen, frame)

	require.Len(t, admin.received(), 1)
	require.Len(t, kitchen.received(), 1)
	assert.Equal(t, frame, string(kitchen.received()[0]))
	assert.Empty(t, cust.received(), "numeric table 5 is not table \"5\"")
}

func TestOrderUpdate_MalformedPayloadStillReachesStaff(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	cust, _ := room.join(t, domain.RoleCustomer)
	room.send(t, cust, `{"type":"join_table","data":{"tableId":"5"}}`)
	admin.reset()

	n, err := room.BroadcastOrderUpdate(Frame(`{"type":"order_update","data":"oops"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, admin.received(), 1)
	assert.Empty(t, cust.received())

	n, err = room.BroadcastOrderUpdate(Frame(`garbage`))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKitchenStatus_FansOut(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	kitchen, _ := room.join(t, domain.RoleKitchen)
	otherKitchen, _ := room.join(t, domain.RoleKitchen)
	seated, _ := room.join(t, domain.RoleCustomer)
	unseated, _ := room.join(t, domain.RoleCustomer)
	room.send(t, seated, `{"type":"join_table","data":{"tableId":"5"}}`)
	admin.reset()

	frame := `{"type":"kitchen_status","data":{"orderId":4,"status":"preparing"}}`
	room.send(t, kitchen, frame)

	got := admin.received()
	require.Len(t, got, 1)
	assert.Equal(t, frame, string(got[0]))

	for _, c := range []*fakeTransport{seated, unseated} {
		envs := c.envelopes(t)
		require.Len(t, envs, 1)
		assert.Equal(t, protocol.TypeOrderStatusUpdate, envs[0].Type)
		assert.JSONEq(t, `{"orderId":4,"status":"preparing"}`, string(envs[0].Data))
	}
	assert.Empty(t, kitchen.received())
	assert.Empty(t, otherKitchen.received())
}

func TestBroadcast_SkipsClosedAndFailing(t *testing.T) {
	room := newTestRoom(t)
	ok1, _ := room.join(t, domain.RoleCustomer)
	ok2, _ := room.join(t, domain.RoleKitchen)
	closed, _ := room.join(t, domain.RoleAdmin)
	full, _ := room.join(t, domain.RoleAdmin)
	closed.Close()
	full.sendErr = errFull

	frame := `{"type":"menu_changed","data":{"itemId":3}}`
	n, err := room.Broadcast(Frame(frame))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, frame, string(ok1.received()[0]))
	assert.Equal(t, frame, string(ok2.received()[0]))
	assert.Empty(t, closed.received())
	assert.Equal(t, int64(1), room.counters.Snapshot().DeliveryFailures)
}

func TestStats(t *testing.T) {
	room := newTestRoom(t)

	stats, err := room.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.ConnectionCount)
	assert.Empty(t, stats.Connections)
	assert.Zero(t, stats.Uptime, "empty room reports zero uptime")

	_, first := room.join(t, domain.RoleAdmin)
	room.clock.Advance(2 * time.Second)
	_, second := room.join(t, domain.RoleCustomer)
	room.clock.Advance(500 * time.Millisecond)

	stats, err = room.Stats()
	require.NoError(t, err)
	assert.Equal(t, room.key, stats.RoomInfo)
	assert.Equal(t, 2, stats.ConnectionCount)
	assert.Equal(t, int64(2500), stats.Uptime)
	require.Len(t, stats.Connections, 2)
	assert.Equal(t, first.ID, stats.Connections[0].ID)
	assert.Equal(t, second.ID, stats.Connections[1].ID)

	b, err := json.Marshal(stats)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, k := range []string{"roomInfo", "connectionCount", "connections", "uptime"} {
		assert.Contains(t, raw, k)
	}
}

func TestStats_SnapshotIsDetached(t *testing.T) {
	room := newTestRoom(t)
	cust, _ := room.join(t, domain.RoleCustomer)
	room.send(t, cust, `{"type":"join_table","data":{"tableId":"5"}}`)

	stats, err := room.Stats()
	require.NoError(t, err)
	stats.Connections[0].Attributes.(*domain.CustomerAttributes).TableID = json.RawMessage(`"9"`)

	stats, err = room.Stats()
	require.NoError(t, err)
	assert.JSONEq(t, `"5"`, string(stats.Connections[0].Attributes.(*domain.CustomerAttributes).TableID))
}

func TestSweep_EvictsIdleOnly(t *testing.T) {
	room := newTestRoom(t)
	idle, _ := room.join(t, domain.RoleCustomer)
	active, _ := room.join(t, domain.RoleAdmin)

	room.clock.Advance(20 * time.Minute)
	room.send(t, active, `{"type":"ping"}`)
	room.clock.Advance(15 * time.Minute)

	n, err := room.Sweep(room.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, idle.isClosed())
	assert.False(t, active.isClosed())

	count, _ := room.Len()
	assert.Equal(t, 1, count)

	n, err = room.Sweep(room.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, room.Unregister(idle), "late close event after a sweep is harmless")
}

func TestSweep_ThresholdIsExclusive(t *testing.T) {
	room := newTestRoom(t)
	tr, _ := room.join(t, domain.RoleKitchen)

	room.clock.Advance(DefaultIdleTimeout)
	n, err := room.Sweep(room.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, tr.isClosed())
}

func TestStop_ClosesTransportsAndRejectsCalls(t *testing.T) {
	actor := NewRoomActor(ActorConfig{})
	tr := &fakeTransport{}
	_, err := actor.Register(tr, domain.RoleAdmin, domain.RoomKey{Type: "admin", ID: "1"}, "")
	require.NoError(t, err)

	actor.Stop()
	actor.Stop()

	assert.True(t, tr.isClosed())
	_, err = actor.Len()
	assert.ErrorIs(t, err, ErrRoomStopped)
	_, err = actor.Broadcast(Frame(`{"type":"x"}`))
	assert.ErrorIs(t, err, ErrRoomStopped)
	assert.ErrorIs(t, actor.Unregister(tr), ErrRoomStopped)
}

// duplicateLookup violates the one-actor-per-key guarantee on purpose.
type duplicateLookup struct {
	actor *RoomActor
}

func (l duplicateLookup) resolve(domain.RoomKey) RoomService { return l.actor }

func TestDuplicateResolution_RejectedNotCorrupted(t *testing.T) {
	room := newTestRoom(t)
	lookup := duplicateLookup{actor: room.RoomActor}
	first := domain.RoomKey{Type: "kitchen", ID: "42"}
	second := domain.RoomKey{Type: "admin", ID: "7"}

	a := &fakeTransport{}
	_, err := lookup.resolve(first).Register(a, domain.RoleKitchen, first, "")
	require.NoError(t, err)

	b := &fakeTransport{}
	_, err = lookup.resolve(second).Register(b, domain.RoleAdmin, second, "")
	assert.ErrorIs(t, err, ErrRoomKeyConflict)

	stats, err := room.Stats()
	require.NoError(t, err)
	assert.Equal(t, first, stats.RoomInfo)
	assert.Equal(t, 1, stats.ConnectionCount)
}

func TestConcurrentTraffic(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)

	const senders, perSender = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		tr, _ := room.join(t, domain.RoleKitchen)
		wg.Add(1)
		go func(tr *fakeTransport) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_ = room.HandleFrame(tr, Frame(fmt.Sprintf(`{"type":"kitchen_status","data":{"seq":%d}}`, j)))
			}
		}(tr)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perSender; i++ {
			_, _ = room.Stats()
		}
	}()
	wg.Wait()

	assert.Len(t, admin.received(), senders*perSender)
}

func TestPerConnectionOrdering(t *testing.T) {
	room := newTestRoom(t)
	admin, _ := room.join(t, domain.RoleAdmin)
	kitchen, _ := room.join(t, domain.RoleKitchen)

	for i := 0; i < 50; i++ {
		room.send(t, kitchen, fmt.Sprintf(`{"type":"kitchen_status","data":{"seq":%d}}`, i))
	}
	envs := admin.envelopes(t)
	require.Len(t, envs, 50)
	for i, env := range envs {
		assert.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, i), string(env.Data))
	}
}
