package app

import "github.com/dkeye/canvas-presence/internal/domain"

// ConnContext is the connection's protocol state. The zero value is a
// freshly connected tab with no workspace context.
type ConnContext struct {
	WorkspaceID string
	DiagramID   string
	ThreadID    string
}

// Rooms lists the context-scoped rooms the connection belongs to.
// Diagram rooms are joined explicitly and are not part of the context.
func (c ConnContext) Rooms() []domain.RoomID {
	var out []domain.RoomID
	if c.WorkspaceID != "" {
		out = append(out, domain.WorkspaceRoom(c.WorkspaceID))
	}
	if c.ThreadID != "" {
		out = append(out, domain.ThreadRoom(c.ThreadID))
	}
	return out
}

// Transition computes which rooms to leave and join to move from c to next.
func (c ConnContext) Transition(next ConnContext) (leave, join []domain.RoomID) {
	prev := c.Rooms()
	want := next.Rooms()
	for _, r := range prev {
		if !containsRoom(want, r) {
			leave = append(leave, r)
		}
	}
	for _, r := range want {
		if !containsRoom(prev, r) {
			join = append(join, r)
		}
	}
	return leave, join
}

func containsRoom(rooms []domain.RoomID, r domain.RoomID) bool {
	for _, x := range rooms {
		if x == r {
			return true
		}
	}
	return false
}
