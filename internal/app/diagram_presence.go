package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

// MembershipIndex is the read side of the Room Membership Index.
type MembershipIndex interface {
	RoomsOf(cid core.ConnectionID) []domain.RoomID
}

// PresenceInput identifies one contributing connection of a user.
type PresenceInput struct {
	ConnectionID core.ConnectionID
	DiagramID    string
	UserID       domain.UserID
	Name         string
	Color        string
	Now          time.Time
}

type DiagramUser struct {
	UserID     domain.UserID `json:"userId"`
	Name       string        `json:"name"`
	Color      string        `json:"color"`
	LastSeenAt int64         `json:"lastSeenAt"`
}

type DiagramSnapshot struct {
	DiagramID string        `json:"diagramId"`
	Users     []DiagramUser `json:"users"`
}

// Selection is a user's current selection in one diagram room.
type Selection struct {
	UserID      domain.UserID
	Name        string
	Color       string
	SelectedIDs []string
	UpdatedAt   time.Time
}

// RoomRemoval is the outcome of removing one connection from one diagram room.
// Snapshot is nil once the room has nothing left to track.
type RoomRemoval struct {
	Room             domain.RoomID
	DiagramID        string
	UserID           domain.UserID
	UserLeft         bool
	SelectionCleared bool
	Snapshot         *DiagramSnapshot
}

type connSet map[core.ConnectionID]struct{}

type presenceEntry struct {
	userID   domain.UserID
	name     string
	color    string
	lastSeen time.Time
	conns    connSet
}

type selectionEntry struct {
	ids       []string
	updatedAt time.Time
	conns     connSet
}

type diagramRoom struct {
	diagramID string
	presence  map[domain.UserID]*presenceEntry
	selection map[domain.UserID]*selectionEntry
}

// DiagramPresence tracks cursors and selections per user per diagram room,
// with each entry kept alive by the set of the user's contributing connections.
type DiagramPresence struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*diagramRoom
	index MembershipIndex
}

func NewDiagramPresence(index MembershipIndex) *DiagramPresence {
	return &DiagramPresence{
		rooms: make(map[domain.RoomID]*diagramRoom),
		index: index,
	}
}

func (d *DiagramPresence) UpsertPresence(room domain.RoomID, in PresenceInput) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upsertLocked(room, in)
}

func (d *DiagramPresence) upsertLocked(room domain.RoomID, in PresenceInput) (*diagramRoom, *presenceEntry) {
	meta, ok := d.rooms[room]
	if !ok {
		meta = &diagramRoom{
			diagramID: in.DiagramID,
			presence:  make(map[domain.UserID]*presenceEntry),
			selection: make(map[domain.UserID]*selectionEntry),
		}
		d.rooms[room] = meta
	}
	entry, ok := meta.presence[in.UserID]
	if !ok {
		entry = &presenceEntry{userID: in.UserID, conns: make(connSet)}
		meta.presence[in.UserID] = entry
	}
	entry.name = in.Name
	entry.color = in.Color
	entry.lastSeen = in.Now
	entry.conns[in.ConnectionID] = struct{}{}
	return meta, entry
}

// SetSelection records selectedIDs for the user (last write wins across the
// user's tabs) and returns the normalized list that was stored. An empty list
// removes the entry.
func (d *DiagramPresence) SetSelection(room domain.RoomID, in PresenceInput, selectedIDs []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	meta, _ := d.upsertLocked(room, in)

	ids := dedupe(selectedIDs)
	if len(ids) == 0 {
		delete(meta.selection, in.UserID)
		return ids
	}
	entry, ok := meta.selection[in.UserID]
	if !ok {
		entry = &selectionEntry{conns: make(connSet)}
		meta.selection[in.UserID] = entry
	}
	entry.ids = ids
	entry.updatedAt = in.Now
	entry.conns[in.ConnectionID] = struct{}{}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Snapshot returns the room's users sorted by display name. ok is false when
// the room has no tracked meta, which differs from a known empty room.
func (d *DiagramPresence) Snapshot(room domain.RoomID) (DiagramSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked(room)
}

func (d *DiagramPresence) snapshotLocked(room domain.RoomID) (DiagramSnapshot, bool) {
	meta, ok := d.rooms[room]
	if !ok {
		return DiagramSnapshot{}, false
	}
	users := make([]DiagramUser, 0, len(meta.presence))
	for _, e := range meta.presence {
		users = append(users, DiagramUser{
			UserID:     e.userID,
			Name:       e.name,
			Color:      e.color,
			LastSeenAt: e.lastSeen.UnixMilli(),
		})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].UserID < users[j].UserID
	})
	return DiagramSnapshot{DiagramID: meta.diagramID, Users: users}, true
}

// Selections lists current selections in the room, sorted by user id.
func (d *DiagramPresence) Selections(room domain.RoomID) []Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	meta, ok := d.rooms[room]
	if !ok {
		return nil
	}
	out := make([]Selection, 0, len(meta.selection))
	for uid, sel := range meta.selection {
		s := Selection{UserID: uid, SelectedIDs: append([]string(nil), sel.ids...), UpdatedAt: sel.updatedAt}
		if p, ok := meta.presence[uid]; ok {
			s.Name, s.Color = p.name, p.color
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (d *DiagramPresence) RemoveConnectionFromRoom(room domain.RoomID, cid core.ConnectionID, uid domain.UserID) RoomRemoval {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(room, cid, uid)
}

func (d *DiagramPresence) removeLocked(room domain.RoomID, cid core.ConnectionID, uid domain.UserID) RoomRemoval {
	res := RoomRemoval{Room: room, UserID: uid}
	meta, ok := d.rooms[room]
	if !ok {
		return res
	}
	res.DiagramID = meta.diagramID
	if entry, ok := meta.presence[uid]; ok {
		delete(entry.conns, cid)
		if len(entry.conns) == 0 {
			delete(meta.presence, uid)
			res.UserLeft = true
		}
	}
	if sel, ok := meta.selection[uid]; ok {
		delete(sel.conns, cid)
		if len(sel.conns) == 0 || res.UserLeft {
			delete(meta.selection, uid)
			res.SelectionCleared = true
		}
	}
	if len(meta.presence) == 0 && len(meta.selection) == 0 {
		delete(d.rooms, room)
		return res
	}
	if snap, ok := d.snapshotLocked(room); ok {
		res.Snapshot = &snap
	}
	return res
}

// RemoveConnection removes cid from every diagram room the membership index
// lists for it. It must run before the connection leaves those rooms.
func (d *DiagramPresence) RemoveConnection(cid core.ConnectionID, uid domain.UserID) []RoomRemoval {
	rooms := d.index.RoomsOf(cid)
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []RoomRemoval
	for _, room := range rooms {
		if room.Kind() != domain.RoomKindDiagram {
			continue
		}
		out = append(out, d.removeLocked(room, cid, uid))
	}
	return out
}

// RoomCount is the number of diagram rooms with tracked meta.
func (d *DiagramPresence) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
