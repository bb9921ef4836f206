package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingConn struct {
	frames []Frame
	full   bool
	closed bool
}

func (c *recordingConn) TrySend(f Frame) error {
	if c.closed {
		return fmt.Errorf("send: %w", ErrConnClosed)
	}
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) Close() {}

func TestRoomBroadcastSkipsSenderAndReportsDropped(t *testing.T) {
	room := NewRoomService("diagram:ws1:d1")
	a, b, slow := &recordingConn{}, &recordingConn{}, &recordingConn{full: true}
	room.AddMember("a", a)
	room.AddMember("b", b)
	room.AddMember("slow", slow)

	res := room.Broadcast("a", Frame("hello"))

	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []ConnectionID{"slow"}, res.Dropped)
	assert.Empty(t, a.frames)
	assert.Equal(t, []Frame{Frame("hello")}, b.frames)

	res = room.Broadcast("", Frame("all"))
	assert.Equal(t, 2, res.SendTo)
	assert.Len(t, a.frames, 1)
}

func TestRoomBroadcastDoesNotReportClosedAsDropped(t *testing.T) {
	room := NewRoomService("workspace:ws1")
	room.AddMember("gone", &recordingConn{closed: true})
	room.AddMember("slow", &recordingConn{full: true})
	room.AddMember("ok", &recordingConn{})

	res := room.Broadcast("", Frame("x"))
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, []ConnectionID{"slow"}, res.Dropped)
}

func TestRoomMembership(t *testing.T) {
	room := NewRoomService("thread:t1")
	room.AddMember("b", &recordingConn{})
	room.AddMember("a", &recordingConn{})
	assert.Equal(t, 2, room.MemberCount())
	assert.Equal(t, []ConnectionID{"a", "b"}, room.Members())
	assert.True(t, room.Has("a"))

	room.RemoveMember("a")
	room.RemoveMember("missing")
	assert.False(t, room.Has("a"))
	assert.Equal(t, 1, room.MemberCount())
}
