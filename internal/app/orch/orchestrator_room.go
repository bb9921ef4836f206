package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

// JoinDiagram adds the connection to the diagram room, broadcasts the new
// snapshot and replays other users' selections to the joiner.
func (o *Orchestrator) JoinDiagram(ctx context.Context, conn app.Conn, ref protocol.DiagramRef) error {
	if _, err := o.Gate.AuthorizeDiagram(ctx, conn.ID, ref.WorkspaceID, ref.DiagramID, conn.User.ID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive(conn.ID) {
		// Disconnected while authorizing; drop what the check just cached.
		o.Gate.ForgetConnection(conn.ID)
		return nil
	}
	room := domain.DiagramRoom(ref.WorkspaceID, ref.DiagramID)
	o.Rooms.Join(room, conn.ID, conn.Signal)
	o.Diagrams.UpsertPresence(room, o.presenceInput(conn, ref.DiagramID))
	log.Debug().Str("module", "orch").Str("conn", string(conn.ID)).Str("room", string(room)).Msg("joined diagram")

	if snap, ok := o.Diagrams.Snapshot(room); ok {
		o.broadcast(room, "", protocol.EventDiagramPresenceSnapshot, snap)
	}
	for _, sel := range o.Diagrams.Selections(room) {
		if sel.UserID == conn.User.ID {
			continue
		}
		o.sendTo(conn.ID, protocol.EventDiagramSelection, protocol.SelectionEvent{
			UserID:          sel.UserID,
			Name:            sel.Name,
			Color:           sel.Color,
			SelectedNodeIDs: sel.SelectedIDs,
			T:               sel.UpdatedAt.UnixMilli(),
		})
	}
	return nil
}

func (o *Orchestrator) LeaveDiagram(ctx context.Context, conn app.Conn, ref protocol.DiagramRef) error {
	if _, err := o.Gate.RequireWorkspaceMember(ctx, ref.WorkspaceID, conn.User.ID); err != nil {
		return err
	}
	if _, err := o.Gate.RequireDiagramInWorkspace(ctx, ref.WorkspaceID, ref.DiagramID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	room := domain.DiagramRoom(ref.WorkspaceID, ref.DiagramID)
	if !o.alive(conn.ID) || !o.Rooms.IsMember(room, conn.ID) {
		return nil
	}
	res := o.Diagrams.RemoveConnectionFromRoom(room, conn.ID, conn.User.ID)
	o.Rooms.Leave(room, conn.ID)
	o.Gate.ForgetDiagram(conn.ID, ref.WorkspaceID, ref.DiagramID, conn.User.ID)
	o.announceRemoval(res)
	return nil
}

// announceRemoval broadcasts the outcome of removing one connection from a
// diagram room. The connection must already have left the room.
func (o *Orchestrator) announceRemoval(res app.RoomRemoval) {
	if res.SelectionCleared && !res.UserLeft {
		o.broadcast(res.Room, "", protocol.EventDiagramSelection, protocol.SelectionEvent{
			UserID:          res.UserID,
			SelectedNodeIDs: []string{},
			T:               o.now(),
		})
	}
	if res.UserLeft {
		o.broadcast(res.Room, "", protocol.EventDiagramUserLeft, protocol.UserLeftEvent{UserID: res.UserID})
	}
	if res.Snapshot != nil {
		o.broadcast(res.Room, "", protocol.EventDiagramPresenceSnapshot, *res.Snapshot)
	}
}

func (o *Orchestrator) presenceInput(conn app.Conn, diagramID string) app.PresenceInput {
	return app.PresenceInput{
		ConnectionID: conn.ID,
		DiagramID:    diagramID,
		UserID:       conn.User.ID,
		Name:         conn.User.Name,
		Color:        domain.ColorFor(conn.User.ID),
		Now:          o.Clock.Now(),
	}
}
