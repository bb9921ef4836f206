package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/adapters/store"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/metrics"
)

func seededStore() *store.MemoryStore {
	s := store.NewMemoryStore(nil)
	s.AddMember("ws1", "ann", domain.RoleEditor)
	s.AddMember("ws1", "vic", domain.RoleViewer)
	s.AddMember("ws2", "ann", domain.Role("guest"))
	s.AddDiagram(domain.Diagram{ID: "d1", WorkspaceID: "ws1"})
	s.AddDiagram(domain.Diagram{ID: "d2", WorkspaceID: "ws2"})
	s.AddThread(domain.Thread{ID: "t1", WorkspaceID: "ws1"})
	s.AddThread(domain.Thread{ID: "t3", WorkspaceID: "ws3"})
	return s
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Diagram(context.Context, string) (domain.Diagram, error) {
	return domain.Diagram{}, errors.New("connection refused")
}

func TestGateChecks(t *testing.T) {
	g := NewGate(seededStore(), metrics.New(), 16, 0)
	ctx := context.Background()

	m, err := g.RequireWorkspaceMember(ctx, "ws1", "ann")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, m.Role)

	m, err = g.RequireWorkspaceMember(ctx, "ws2", "ann")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, m.Role)

	_, err = g.RequireWorkspaceMember(ctx, "ws1", "bob")
	assert.Equal(t, domain.CodeWorkspaceNotFound, domain.CodeOf(err))

	_, err = g.RequireDiagramInWorkspace(ctx, "ws1", "d2")
	assert.Equal(t, domain.CodeDiagramNotFound, domain.CodeOf(err))
	_, err = g.RequireDiagramInWorkspace(ctx, "ws1", "missing")
	assert.Equal(t, domain.CodeDiagramNotFound, domain.CodeOf(err))

	th, m, err := g.RequireThreadAccess(ctx, "t1", "vic")
	require.NoError(t, err)
	assert.Equal(t, "ws1", th.WorkspaceID)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(g.RequireEditableRole(m.Role)))
	assert.NoError(t, g.RequireEditableRole(domain.RoleOwner))

	_, _, err = g.RequireThreadAccess(ctx, "missing", "ann")
	assert.Equal(t, domain.CodeThreadNotFound, domain.CodeOf(err))
	_, _, err = g.RequireThreadAccess(ctx, "t3", "ann")
	assert.Equal(t, domain.CodeWorkspaceNotFound, domain.CodeOf(err))
}

func TestGateStoreFaultsAreInternal(t *testing.T) {
	g := NewGate(brokenStore{seededStore()}, metrics.New(), 16, 0)
	_, err := g.RequireDiagramInWorkspace(context.Background(), "ws1", "d1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))
}

func TestAuthorizeDiagramCache(t *testing.T) {
	s := seededStore()
	m := metrics.New()
	g := NewGate(s, m, 16, time.Minute)
	ctx := context.Background()

	_, err := g.AuthorizeDiagram(ctx, "c1", "ws1", "d1", "ann")
	require.NoError(t, err)
	_, err = g.AuthorizeDiagram(ctx, "c1", "ws1", "d1", "ann")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzCache.WithLabelValues(metrics.CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzCache.WithLabelValues(metrics.CacheMiss)))

	// failures are never cached
	_, err = g.AuthorizeDiagram(ctx, "c1", "ws1", "d2", "ann")
	assert.Equal(t, domain.CodeDiagramNotFound, domain.CodeOf(err))
	_, err = g.AuthorizeDiagram(ctx, "c1", "ws1", "d2", "ann")
	assert.Equal(t, domain.CodeDiagramNotFound, domain.CodeOf(err))

	_, err = g.AuthorizeDiagram(ctx, "c2", "ws1", "d1", "ann")
	require.NoError(t, err)
	s.RemoveMember("ws1", "ann")

	g.ForgetConnection("c1")
	_, err = g.AuthorizeDiagram(ctx, "c1", "ws1", "d1", "ann")
	assert.Equal(t, domain.CodeWorkspaceNotFound, domain.CodeOf(err))
	_, err = g.AuthorizeDiagram(ctx, "c2", "ws1", "d1", "ann")
	assert.NoError(t, err, "other connections keep their entry")

	assert.Equal(t, 1, g.InvalidateUser("ann"))
	_, err = g.AuthorizeDiagram(ctx, "c2", "ws1", "d1", "ann")
	assert.Equal(t, domain.CodeWorkspaceNotFound, domain.CodeOf(err))
}
