package app

import (
	"sort"
	"sync"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

// WorkspaceTarget is what one connection currently points at.
type WorkspaceTarget struct {
	WorkspaceID string
	DiagramID   string
	User        domain.User
}

type PresenceUser struct {
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
	Image  string        `json:"image,omitempty"`
}

type WorkspaceSnapshot struct {
	WorkspaceID string         `json:"workspaceId"`
	DiagramID   string         `json:"diagramId,omitempty"`
	Online      []PresenceUser `json:"online"`
	Viewing     []PresenceUser `json:"viewing"`
}

// Equal reports whether two snapshots list the same users.
func (s WorkspaceSnapshot) Equal(o WorkspaceSnapshot) bool {
	return s.WorkspaceID == o.WorkspaceID && s.DiagramID == o.DiagramID &&
		samePresence(s.Online, o.Online) && samePresence(s.Viewing, o.Viewing)
}

// WorkspacePresence groups connections by workspace. Snapshots are
// recomputed from a full scan of the workspace's connections.
type WorkspacePresence struct {
	mu          sync.RWMutex
	sockets     map[core.ConnectionID]WorkspaceTarget
	byWorkspace map[string]map[core.ConnectionID]struct{}
}

func NewWorkspacePresence() *WorkspacePresence {
	return &WorkspacePresence{
		sockets:     make(map[core.ConnectionID]WorkspaceTarget),
		byWorkspace: make(map[string]map[core.ConnectionID]struct{}),
	}
}

// UpsertSocket records the connection's target, moving it out of any previous
// workspace. It returns the previous target, if any.
func (w *WorkspacePresence) UpsertSocket(cid core.ConnectionID, t WorkspaceTarget) (WorkspaceTarget, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, had := w.removeLocked(cid)
	w.sockets[cid] = t
	set, ok := w.byWorkspace[t.WorkspaceID]
	if !ok {
		set = make(map[core.ConnectionID]struct{})
		w.byWorkspace[t.WorkspaceID] = set
	}
	set[cid] = struct{}{}
	return prev, had
}

// RemoveSocket forgets the connection and returns what it was targeting.
func (w *WorkspacePresence) RemoveSocket(cid core.ConnectionID) (WorkspaceTarget, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeLocked(cid)
}

func (w *WorkspacePresence) removeLocked(cid core.ConnectionID) (WorkspaceTarget, bool) {
	prev, ok := w.sockets[cid]
	if !ok {
		return WorkspaceTarget{}, false
	}
	delete(w.sockets, cid)
	if set, ok := w.byWorkspace[prev.WorkspaceID]; ok {
		delete(set, cid)
		if len(set) == 0 {
			delete(w.byWorkspace, prev.WorkspaceID)
		}
	}
	return prev, true
}

// Snapshot lists users online in the workspace and those viewing diagramID,
// each user once regardless of how many tabs they hold.
func (w *WorkspacePresence) Snapshot(workspaceID, diagramID string) WorkspaceSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := WorkspaceSnapshot{
		WorkspaceID: workspaceID,
		DiagramID:   diagramID,
		Online:      []PresenceUser{},
		Viewing:     []PresenceUser{},
	}
	online := make(map[domain.UserID]struct{})
	viewing := make(map[domain.UserID]struct{})
	for cid := range w.byWorkspace[workspaceID] {
		t := w.sockets[cid]
		u := PresenceUser{UserID: t.User.ID, Name: t.User.Name, Image: t.User.Image}
		if _, seen := online[u.UserID]; !seen {
			online[u.UserID] = struct{}{}
			snap.Online = append(snap.Online, u)
		}
		if diagramID == "" || t.DiagramID != diagramID {
			continue
		}
		if _, seen := viewing[u.UserID]; !seen {
			viewing[u.UserID] = struct{}{}
			snap.Viewing = append(snap.Viewing, u)
		}
	}
	sortPresence(snap.Online)
	sortPresence(snap.Viewing)
	return snap
}

func (w *WorkspacePresence) Target(cid core.ConnectionID) (WorkspaceTarget, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.sockets[cid]
	return t, ok
}

func sortPresence(users []PresenceUser) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].UserID < users[j].UserID
	})
}

func samePresence(a, b []PresenceUser) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
