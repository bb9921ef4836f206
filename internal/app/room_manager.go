package app

import (
	"sort"
	"sync"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

// RoomManagerImpl owns every broadcast group plus the Room Membership
// Index (connection -> joined rooms) consulted on disconnect.
type RoomManagerImpl struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]core.RoomService
	byConn map[core.ConnectionID]map[domain.RoomID]struct{}
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms:  make(map[domain.RoomID]core.RoomService),
		byConn: make(map[core.ConnectionID]map[domain.RoomID]struct{}),
	}
}

// Join is idempotent.
func (f *RoomManagerImpl) Join(id domain.RoomID, cid core.ConnectionID, sig core.SignalConnection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		room = core.NewRoomService(id)
		f.rooms[id] = room
	}
	room.AddMember(cid, sig)
	joined, ok := f.byConn[cid]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		f.byConn[cid] = joined
	}
	joined[id] = struct{}{}
}

// Leave is a no-op when cid is not a member. Empty rooms are dropped.
func (f *RoomManagerImpl) Leave(id domain.RoomID, cid core.ConnectionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveLocked(id, cid)
}

func (f *RoomManagerImpl) leaveLocked(id domain.RoomID, cid core.ConnectionID) {
	if room, ok := f.rooms[id]; ok {
		room.RemoveMember(cid)
		if room.MemberCount() == 0 {
			delete(f.rooms, id)
		}
	}
	if joined, ok := f.byConn[cid]; ok {
		delete(joined, id)
		if len(joined) == 0 {
			delete(f.byConn, cid)
		}
	}
}

// LeaveAll removes cid from every room and returns what it had joined.
func (f *RoomManagerImpl) LeaveAll(cid core.ConnectionID) []domain.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	left := sortedRooms(f.byConn[cid])
	for _, id := range left {
		f.leaveLocked(id, cid)
	}
	return left
}

func (f *RoomManagerImpl) IsMember(id domain.RoomID, cid core.ConnectionID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byConn[cid][id]
	return ok
}

// RoomsOf returns the rooms cid has joined, sorted.
func (f *RoomManagerImpl) RoomsOf(cid core.ConnectionID) []domain.RoomID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedRooms(f.byConn[cid])
}

func (f *RoomManagerImpl) Members(id domain.RoomID) []core.ConnectionID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if room, ok := f.rooms[id]; ok {
		return room.Members()
	}
	return nil
}

// Broadcast sends to every member of id except the given connection.
// A missing room is an empty room.
func (f *RoomManagerImpl) Broadcast(id domain.RoomID, except core.ConnectionID, data core.Frame) core.PublishResult {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	if !ok {
		return core.PublishResult{}
	}
	return room.Broadcast(except, data)
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedRooms(set map[domain.RoomID]struct{}) []domain.RoomID {
	out := make([]domain.RoomID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
