package orch

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

// InitContext re-establishes the connection's workspace, diagram and thread
// context. Nothing changes unless every check passes.
func (o *Orchestrator) InitContext(ctx context.Context, conn app.Conn, p *protocol.AuthInit) error {
	if err := o.authorizeContext(ctx, conn.User.ID, p.WorkspaceID, p.DiagramID, p.ThreadID); err != nil {
		return err
	}
	next := app.ConnContext{WorkspaceID: p.WorkspaceID, DiagramID: p.DiagramID, ThreadID: p.ThreadID}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive(conn.ID) {
		return nil
	}
	o.applyContextLocked(conn, next, true)
	log.Debug().Str("module", "orch").Str("conn", string(conn.ID)).Str("workspace", next.WorkspaceID).Msg("context initialized")
	return nil
}

// UpdatePresence switches between idle and viewing a diagram. Moving to a
// different workspace drops the thread context.
func (o *Orchestrator) UpdatePresence(ctx context.Context, conn app.Conn, p *protocol.PresenceUpdate) error {
	if p.State == protocol.StateViewing && p.DiagramID == "" {
		return domain.NewError(domain.CodeDiagramRequired, "viewing requires a diagram")
	}
	diagramID := p.DiagramID
	if p.State == protocol.StateOnline {
		diagramID = ""
	}
	if err := o.authorizeContext(ctx, conn.User.ID, p.WorkspaceID, diagramID, ""); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive(conn.ID) {
		return nil
	}
	prev := o.Registry.Context(conn.ID)
	next := app.ConnContext{WorkspaceID: p.WorkspaceID, DiagramID: diagramID}
	sameWorkspace := prev.WorkspaceID == p.WorkspaceID
	if sameWorkspace {
		next.ThreadID = prev.ThreadID
	}
	o.applyContextLocked(conn, next, !sameWorkspace)
	return nil
}

// authorizeContext runs the independent lookups concurrently and reports the
// first failure in workspace, diagram, thread order.
func (o *Orchestrator) authorizeContext(ctx context.Context, uid domain.UserID, workspaceID, diagramID, threadID string) error {
	var g errgroup.Group
	var wsErr, diagramErr, threadErr error
	g.Go(func() error {
		_, wsErr = o.Gate.RequireWorkspaceMember(ctx, workspaceID, uid)
		return nil
	})
	if diagramID != "" {
		g.Go(func() error {
			_, diagramErr = o.Gate.RequireDiagramInWorkspace(ctx, workspaceID, diagramID)
			return nil
		})
	}
	if threadID != "" {
		g.Go(func() error {
			t, _, err := o.Gate.RequireThreadAccess(ctx, threadID, uid)
			if err == nil && t.WorkspaceID != workspaceID {
				err = domain.NewError(domain.CodeThreadWorkspaceMismatch, "thread belongs to another workspace")
			}
			threadErr = err
			return nil
		})
	}
	_ = g.Wait()
	for _, err := range []error{wsErr, diagramErr, threadErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// applyContextLocked moves the connection from its current context to next
// and broadcasts the affected workspace snapshots. Caller holds mu.
func (o *Orchestrator) applyContextLocked(conn app.Conn, next app.ConnContext, resetTyping bool) {
	prev := o.Registry.Context(conn.ID)
	var stopped []app.TypingKey
	if resetTyping {
		stopped = o.Typing.StopAllForSocket(conn.ID)
	} else if prev.ThreadID != next.ThreadID && prev.ThreadID != "" {
		if o.Typing.Stop(prev.ThreadID, conn.User.ID, conn.ID) {
			stopped = append(stopped, app.TypingKey{ThreadID: prev.ThreadID, UserID: conn.User.ID})
		}
	}

	var oldBefore app.WorkspaceSnapshot
	movedOut := prev.WorkspaceID != "" && prev.WorkspaceID != next.WorkspaceID
	if movedOut {
		oldBefore = o.Workspaces.Snapshot(prev.WorkspaceID, prev.DiagramID)
	}

	leave, join := prev.Transition(next)
	for _, r := range leave {
		o.Rooms.Leave(r, conn.ID)
	}
	for _, r := range join {
		o.Rooms.Join(r, conn.ID, conn.Signal)
	}
	o.Workspaces.UpsertSocket(conn.ID, app.WorkspaceTarget{
		WorkspaceID: next.WorkspaceID,
		DiagramID:   next.DiagramID,
		User:        conn.User,
	})
	o.Registry.SetContext(conn.ID, next)

	for _, k := range stopped {
		o.broadcast(domain.ThreadRoom(k.ThreadID), conn.ID, protocol.EventChatTyping,
			protocol.TypingEvent{ThreadID: k.ThreadID, UserID: k.UserID, IsTyping: false})
	}
	snap := o.Workspaces.Snapshot(next.WorkspaceID, next.DiagramID)
	o.sendTo(conn.ID, protocol.EventPresenceSnapshot, snap)
	o.broadcast(domain.WorkspaceRoom(next.WorkspaceID), "", protocol.EventPresenceUpdate, snap)
	if movedOut {
		oldAfter := o.Workspaces.Snapshot(prev.WorkspaceID, prev.DiagramID)
		if !oldAfter.Equal(oldBefore) {
			o.broadcast(domain.WorkspaceRoom(prev.WorkspaceID), "", protocol.EventPresenceUpdate, oldAfter)
		}
	}
}
