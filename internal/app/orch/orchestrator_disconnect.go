package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

// OnDisconnect unwinds everything the connection contributed to. All state
// is cleaned before the first broadcast fires. Calling it twice is a no-op.
func (o *Orchestrator) OnDisconnect(cid core.ConnectionID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	conn, ok := o.Registry.Get(cid)
	if !ok {
		return
	}
	prev := o.Registry.Context(cid)

	stopped := o.Typing.StopAllForSocket(cid)
	target, hadTarget := o.Workspaces.RemoveSocket(cid)
	removals := o.Diagrams.RemoveConnection(cid, conn.User.ID)
	left := o.Rooms.LeaveAll(cid)
	o.Registry.Unbind(cid)
	o.Gate.ForgetConnection(cid)
	if f, ok := o.Policy.(app.Forgetter); ok {
		f.Forget(cid)
	}
	o.Metrics.Connections.Dec()

	for _, k := range stopped {
		o.broadcastTyping(cid, k, false)
	}
	if hadTarget {
		o.broadcast(domain.WorkspaceRoom(target.WorkspaceID), "", protocol.EventPresenceUpdate,
			o.Workspaces.Snapshot(target.WorkspaceID, target.DiagramID))
	}
	for _, res := range removals {
		o.announceRemoval(res)
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(conn.User.ID)).
		Str("workspace", prev.WorkspaceID).Int("rooms", len(left)).Msg("connection cleaned up")
}

// Kick cancels a connection; its transport then runs OnDisconnect.
func (o *Orchestrator) Kick(cid core.ConnectionID) bool {
	return o.Registry.Cancel(cid)
}

// InvalidateUser drops cached authorization for uid so the next streaming
// event hits the store.
func (o *Orchestrator) InvalidateUser(uid domain.UserID) int {
	return o.Gate.InvalidateUser(uid)
}

// WorkspaceSnapshot is the read-only view served over HTTP.
func (o *Orchestrator) WorkspaceSnapshot(workspaceID string) app.WorkspaceSnapshot {
	return o.Workspaces.Snapshot(workspaceID, "")
}
