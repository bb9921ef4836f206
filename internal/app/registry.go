package app

import (
	"context"
	"sync"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Conn is a live connection as seen by the router.
type Conn struct {
	ID     core.ConnectionID
	User   domain.User
	Signal core.SignalConnection
}

type sessionEntry struct {
	conn    Conn
	context ConnContext
	cancel  context.CancelFunc
}

// Registry tracks live connections and their protocol context.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnectionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnectionID]*sessionEntry),
	}
}

func (r *Registry) Bind(conn Conn, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn.ID] = &sessionEntry{conn: conn, cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(conn.ID)).Str("user", string(conn.User.ID)).Msg("bound connection")
}

func (r *Registry) Get(cid core.ConnectionID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.conn, true
	}
	return Conn{}, false
}

func (r *Registry) Has(cid core.ConnectionID) bool {
	_, ok := r.Get(cid)
	return ok
}

func (r *Registry) Unbind(cid core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind connection")
}

func (r *Registry) Context(cid core.ConnectionID) ConnContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.context
	}
	return ConnContext{}
}

// SetContext replaces the connection's context; false if it is gone.
func (r *Registry) SetContext(cid core.ConnectionID, next ConnContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return false
	}
	e.context = next
	log.Debug().Str("module", "app.registry").Str("conn", string(cid)).
		Str("workspace", next.WorkspaceID).Str("diagram", next.DiagramID).Str("thread", next.ThreadID).
		Msg("updated context")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) ConnectionsOfUser(uid domain.UserID) []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.ConnectionID
	for cid, e := range r.sessions {
		if e.conn.User.ID == uid {
			out = append(out, cid)
		}
	}
	return out
}

// Cancel stops the connection's pumps and closes its transport; the
// adapter's read loop then runs the disconnect path.
func (r *Registry) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.conn.Signal != nil {
		e.conn.Signal.Close()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}
