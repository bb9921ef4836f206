package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/domain"
)

func newRedisResolver(t *testing.T) (*RedisResolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisResolver(rdb, "session_token", "session:"), mr
}

func TestRedisResolver(t *testing.T) {
	r, mr := newRedisResolver(t)
	require.NoError(t, mr.Set("session:tok1", `{"userId":"ann","name":"Ann","image":"a.png"}`))
	require.NoError(t, mr.Set("session:tok2", `{"userId":"bob"}`))
	require.NoError(t, mr.Set("session:bad", `not json`))
	require.NoError(t, mr.Set("session:anon", `{"name":"nobody"}`))

	t.Run("Resolved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok1"})
		u, ok := r.Resolve(req)
		require.True(t, ok)
		assert.Equal(t, domain.User{ID: "ann", Name: "Ann", Image: "a.png"}, u)
	})

	t.Run("NameFallsBackToID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok2"})
		u, ok := r.Resolve(req)
		require.True(t, ok)
		assert.Equal(t, "bob", u.Name)
	})

	t.Run("SecurePrefixBehindTLSProxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		req.AddCookie(&http.Cookie{Name: "__Secure-session_token", Value: "tok1"})
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok2"})
		u, ok := r.Resolve(req)
		require.True(t, ok)
		assert.Equal(t, domain.UserID("ann"), u.ID)
	})

	t.Run("SecurePrefixIgnoredOverHTTP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.AddCookie(&http.Cookie{Name: "__Secure-session_token", Value: "tok1"})
		_, ok := r.Resolve(req)
		assert.False(t, ok)
	})

	for _, tok := range []string{"", "missing", "bad", "anon"} {
		t.Run("Rejects_"+tok, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			if tok != "" {
				req.AddCookie(&http.Cookie{Name: "session_token", Value: tok})
			}
			_, ok := r.Resolve(req)
			assert.False(t, ok)
		})
	}
}

func TestRedisResolverFailsClosedWhenRedisIsDown(t *testing.T) {
	r, mr := newRedisResolver(t)
	require.NoError(t, mr.Set("session:tok1", `{"userId":"ann"}`))
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok1"})
	_, ok := r.Resolve(req)
	assert.False(t, ok)
}
