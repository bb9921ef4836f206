package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

type authzKey struct {
	Conn        core.ConnectionID
	WorkspaceID string
	DiagramID   string
	UserID      domain.UserID
}

// Gate answers membership questions against the store. Diagram checks on the
// streaming path go through a short-lived cache scoped to one connection.
type Gate struct {
	store   core.Store
	cache   *expirable.LRU[authzKey, domain.Membership]
	metrics *metrics.Metrics
}

// NewGate builds a gate. A zero ttl disables the diagram cache.
func NewGate(store core.Store, m *metrics.Metrics, size int, ttl time.Duration) *Gate {
	g := &Gate{store: store, metrics: m}
	if ttl > 0 {
		g.cache = expirable.NewLRU[authzKey, domain.Membership](size, nil, ttl)
	}
	return g
}

func (g *Gate) RequireWorkspaceMember(ctx context.Context, workspaceID string, uid domain.UserID) (domain.Membership, error) {
	m, err := g.store.WorkspaceMembership(ctx, workspaceID, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Membership{}, domain.NewError(domain.CodeWorkspaceNotFound, "workspace not found")
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("membership lookup %s: %w", workspaceID, err)
	}
	m.Role = domain.NormalizeRole(string(m.Role))
	return m, nil
}

func (g *Gate) RequireDiagramInWorkspace(ctx context.Context, workspaceID, diagramID string) (domain.Diagram, error) {
	d, err := g.store.Diagram(ctx, diagramID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Diagram{}, domain.NewError(domain.CodeDiagramNotFound, "diagram not found")
	}
	if err != nil {
		return domain.Diagram{}, fmt.Errorf("diagram lookup %s: %w", diagramID, err)
	}
	if d.WorkspaceID != workspaceID {
		return domain.Diagram{}, domain.NewError(domain.CodeDiagramNotFound, "diagram not found")
	}
	return d, nil
}

// RequireThreadAccess resolves the thread's workspace and checks membership there.
func (g *Gate) RequireThreadAccess(ctx context.Context, threadID string, uid domain.UserID) (domain.Thread, domain.Membership, error) {
	t, err := g.store.Thread(ctx, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Thread{}, domain.Membership{}, domain.NewError(domain.CodeThreadNotFound, "thread not found")
	}
	if err != nil {
		return domain.Thread{}, domain.Membership{}, fmt.Errorf("thread lookup %s: %w", threadID, err)
	}
	m, err := g.RequireWorkspaceMember(ctx, t.WorkspaceID, uid)
	if err != nil {
		return domain.Thread{}, domain.Membership{}, err
	}
	return t, m, nil
}

func (g *Gate) RequireEditableRole(role domain.Role) error {
	if !role.CanEdit() {
		return domain.NewError(domain.CodeForbidden, "read-only role")
	}
	return nil
}

// AuthorizeDiagram checks workspace membership and diagram ownership, serving
// repeated checks from the same connection out of the cache.
func (g *Gate) AuthorizeDiagram(ctx context.Context, cid core.ConnectionID, workspaceID, diagramID string, uid domain.UserID) (domain.Membership, error) {
	key := authzKey{Conn: cid, WorkspaceID: workspaceID, DiagramID: diagramID, UserID: uid}
	if g.cache != nil {
		if m, ok := g.cache.Get(key); ok {
			g.observe(metrics.CacheHit)
			return m, nil
		}
		g.observe(metrics.CacheMiss)
	}
	m, err := g.RequireWorkspaceMember(ctx, workspaceID, uid)
	if err != nil {
		return domain.Membership{}, err
	}
	if _, err := g.RequireDiagramInWorkspace(ctx, workspaceID, diagramID); err != nil {
		return domain.Membership{}, err
	}
	if g.cache != nil {
		g.cache.Add(key, m)
	}
	return m, nil
}

// ForgetDiagram drops the cached decision for one connection and diagram.
func (g *Gate) ForgetDiagram(cid core.ConnectionID, workspaceID, diagramID string, uid domain.UserID) {
	if g.cache == nil {
		return
	}
	g.cache.Remove(authzKey{Conn: cid, WorkspaceID: workspaceID, DiagramID: diagramID, UserID: uid})
}

func (g *Gate) ForgetConnection(cid core.ConnectionID) {
	g.removeWhere(func(k authzKey) bool { return k.Conn == cid })
}

// InvalidateUser drops every cached decision for uid, e.g. after a role change.
func (g *Gate) InvalidateUser(uid domain.UserID) int {
	n := g.removeWhere(func(k authzKey) bool { return k.UserID == uid })
	log.Debug().Str("module", "app.authz").Str("user", string(uid)).Int("entries", n).Msg("invalidated user")
	return n
}

func (g *Gate) removeWhere(match func(authzKey) bool) int {
	if g.cache == nil {
		return 0
	}
	n := 0
	for _, k := range g.cache.Keys() {
		if match(k) && g.cache.Remove(k) {
			n++
		}
	}
	return n
}

func (g *Gate) observe(result string) {
	if g.metrics != nil {
		g.metrics.AuthzCache.WithLabelValues(result).Inc()
	}
}
