package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

func TestRoomManagerMembershipIndex(t *testing.T) {
	m := NewRoomManager()
	ws := domain.WorkspaceRoom("ws1")
	dg := domain.DiagramRoom("ws1", "d1")

	m.Join(ws, "c1", &stubConn{})
	m.Join(dg, "c1", &stubConn{})
	m.Join(dg, "c1", &stubConn{})
	m.Join(dg, "c2", &stubConn{})

	assert.Equal(t, []domain.RoomID{dg, ws}, m.RoomsOf("c1"))
	assert.True(t, m.IsMember(dg, "c2"))
	assert.Equal(t, []core.ConnectionID{"c1", "c2"}, m.Members(dg))

	left := m.LeaveAll("c1")
	assert.Equal(t, []domain.RoomID{dg, ws}, left)
	assert.Empty(t, m.RoomsOf("c1"))
	assert.False(t, m.IsMember(ws, "c1"))

	rooms := m.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, core.RoomInfo{ID: dg, MemberCount: 1}, rooms[0])

	m.Leave(dg, "c2")
	assert.Empty(t, m.List())
	m.Leave(dg, "c2")
}

func TestRoomManagerBroadcast(t *testing.T) {
	m := NewRoomManager()
	room := domain.ThreadRoom("t1")
	a, b, slow := &stubConn{}, &stubConn{}, &stubConn{full: true}
	m.Join(room, "a", a)
	m.Join(room, "b", b)
	m.Join(room, "slow", slow)

	res := m.Broadcast(room, "a", core.Frame(`{}`))
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []core.ConnectionID{"slow"}, res.Dropped)
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())

	assert.Equal(t, core.PublishResult{}, m.Broadcast(domain.ThreadRoom("missing"), "", core.Frame(`{}`)))
}
