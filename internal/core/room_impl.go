package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id    domain.RoomID
	mu    sync.RWMutex
	byCID map[ConnectionID]SignalConnection
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:    id,
		byCID: make(map[ConnectionID]SignalConnection),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCID)
}

func (r *roomImpl) Has(cid ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCID[cid]
	return ok
}

func (r *roomImpl) AddMember(cid ConnectionID, sig SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCID[cid] = sig
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(cid)).Msg("member added")
}

func (r *roomImpl) RemoveMember(cid ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byCID, cid)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(cid)).Msg("member removed")
}

// Broadcast enqueues data for every member but except. Pass "" to include everyone.
func (r *roomImpl) Broadcast(except ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, sig := range r.byCID {
		if cid == except {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			if errors.Is(err, ErrConnClosed) {
				res.Closed++
				continue
			}
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("except", string(except)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Members() []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionID, 0, len(r.byCID))
	for cid := range r.byCID {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
