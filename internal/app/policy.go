package app

import (
	"sync"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, cid core.ConnectionID) BackpressureAction
}

// Forgetter is implemented by policies that keep per-connection state.
type Forgetter interface {
	Forget(cid core.ConnectionID)
}

// SimplePolicy kicks slow members.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, cid core.ConnectionID) BackpressureAction {
	return KickMember
}

// StreamPolicy drops cursor-class frames in diagram rooms up to a budget per
// connection, then kicks. Workspace and thread frames are never dropped.
type StreamPolicy struct {
	budget int

	mu    sync.Mutex
	drops map[core.ConnectionID]int
}

func NewStreamPolicy(budget int) *StreamPolicy {
	return &StreamPolicy{budget: budget, drops: make(map[core.ConnectionID]int)}
}

func (p *StreamPolicy) OnBackPressure(room domain.RoomID, cid core.ConnectionID) BackpressureAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if room.Kind() == domain.RoomKindDiagram && p.drops[cid] < p.budget {
		p.drops[cid]++
		return DropFrame
	}
	delete(p.drops, cid)
	return KickMember
}

func (p *StreamPolicy) Forget(cid core.ConnectionID) {
	p.mu.Lock()
	delete(p.drops, cid)
	p.mu.Unlock()
}
