package orch

import (
	"context"
	"time"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

// streamPrecheck gates the high-frequency diagram events: the connection must
// already have joined the room, then membership is re-checked (cached).
func (o *Orchestrator) streamPrecheck(ctx context.Context, conn app.Conn, workspaceID, diagramID string) (domain.RoomID, domain.Membership, error) {
	room := domain.DiagramRoom(workspaceID, diagramID)
	if !o.Rooms.IsMember(room, conn.ID) {
		return "", domain.Membership{}, domain.NewError(domain.CodeDiagramRoomNotJoined, "join the diagram first")
	}
	m, err := o.Gate.AuthorizeDiagram(ctx, conn.ID, workspaceID, diagramID, conn.User.ID)
	if err != nil {
		return "", domain.Membership{}, err
	}
	return room, m, nil
}

func (o *Orchestrator) Cursor(ctx context.Context, conn app.Conn, p *protocol.DiagramCursor) error {
	room, _, err := o.streamPrecheck(ctx, conn, p.WorkspaceID, p.DiagramID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Rooms.IsMember(room, conn.ID) {
		o.Gate.ForgetDiagram(conn.ID, p.WorkspaceID, p.DiagramID, conn.User.ID)
		return nil
	}
	in := o.presenceInput(conn, p.DiagramID)
	o.Diagrams.UpsertPresence(room, in)
	o.broadcast(room, conn.ID, protocol.EventDiagramCursor, protocol.CursorEvent{
		UserID:   conn.User.ID,
		Name:     in.Name,
		Color:    in.Color,
		X:        *p.X,
		Y:        *p.Y,
		Viewport: p.Viewport,
		T:        in.Now.UnixMilli(),
	})
	return nil
}

func (o *Orchestrator) Selection(ctx context.Context, conn app.Conn, p *protocol.DiagramSelection) error {
	room, _, err := o.streamPrecheck(ctx, conn, p.WorkspaceID, p.DiagramID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Rooms.IsMember(room, conn.ID) {
		o.Gate.ForgetDiagram(conn.ID, p.WorkspaceID, p.DiagramID, conn.User.ID)
		return nil
	}
	in := o.presenceInput(conn, p.DiagramID)
	ids := o.Diagrams.SetSelection(room, in, p.SelectedNodeIDs)
	o.broadcast(room, conn.ID, protocol.EventDiagramSelection, protocol.SelectionEvent{
		UserID:          conn.User.ID,
		Name:            in.Name,
		Color:           in.Color,
		SelectedNodeIDs: ids,
		T:               in.Now.UnixMilli(),
	})
	return nil
}

// Heartbeat refreshes last-seen without broadcasting.
func (o *Orchestrator) Heartbeat(ctx context.Context, conn app.Conn, ref protocol.DiagramRef) error {
	room, _, err := o.streamPrecheck(ctx, conn, ref.WorkspaceID, ref.DiagramID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Rooms.IsMember(room, conn.ID) {
		o.Gate.ForgetDiagram(conn.ID, ref.WorkspaceID, ref.DiagramID, conn.User.ID)
		return nil
	}
	o.Diagrams.UpsertPresence(room, o.presenceInput(conn, ref.DiagramID))
	return nil
}

// DocumentUpdated tells the room's other connections to refetch the document.
func (o *Orchestrator) DocumentUpdated(ctx context.Context, conn app.Conn, p *protocol.DocumentUpdated) error {
	room, m, err := o.streamPrecheck(ctx, conn, p.WorkspaceID, p.DiagramID)
	if err != nil {
		return err
	}
	// Viewers may watch the document but not announce edits to it.
	if err := o.Gate.RequireEditableRole(m.Role); err != nil {
		return err
	}
	updatedAt := p.UpdatedAt
	if updatedAt == "" {
		updatedAt = o.Clock.Now().UTC().Format(time.RFC3339)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.Rooms.IsMember(room, conn.ID) {
		o.Gate.ForgetDiagram(conn.ID, p.WorkspaceID, p.DiagramID, conn.User.ID)
		return nil
	}
	o.broadcast(room, conn.ID, protocol.EventDocumentUpdated, protocol.DocumentUpdatedEvent{
		WorkspaceID: p.WorkspaceID,
		DiagramID:   p.DiagramID,
		UpdatedAt:   updatedAt,
		ByUserID:    conn.User.ID,
	})
	return nil
}
