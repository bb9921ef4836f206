package domain

import "strings"

// RoomID names a broadcast group. Rooms are derived from workspace,
// diagram and thread ids and never stored.
type RoomID string

type RoomKind string

const (
	RoomKindWorkspace RoomKind = "workspace"
	RoomKindDiagram   RoomKind = "diagram"
	RoomKindThread    RoomKind = "thread"
)

func WorkspaceRoom(workspaceID string) RoomID {
	return RoomID(string(RoomKindWorkspace) + ":" + workspaceID)
}

// DiagramRoom is scoped by workspace so equal diagram ids in different
// tenants never share a room. Ids must not contain ':' (rejected at decode).
func DiagramRoom(workspaceID, diagramID string) RoomID {
	return RoomID(string(RoomKindDiagram) + ":" + workspaceID + ":" + diagramID)
}

func ThreadRoom(threadID string) RoomID {
	return RoomID(string(RoomKindThread) + ":" + threadID)
}

// Kind returns the room's kind, or "" for names not produced by this package.
func (r RoomID) Kind() RoomKind {
	kind, _, ok := strings.Cut(string(r), ":")
	if !ok {
		return ""
	}
	switch RoomKind(kind) {
	case RoomKindWorkspace, RoomKindDiagram, RoomKindThread:
		return RoomKind(kind)
	default:
		return ""
	}
}
