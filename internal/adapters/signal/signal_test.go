package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/adapters/store"
	"github.com/dkeye/canvas-presence/internal/app/orch"
	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID *int64          `json:"ackId"`
}

func queryResolver() core.IdentityResolver {
	return core.ResolverFunc(func(r *http.Request) (domain.User, bool) {
		id := r.URL.Query().Get("user")
		if id == "" {
			return domain.User{}, false
		}
		u, err := domain.NewUser(id, strings.ToUpper(id[:1])+id[1:], "")
		return u, err == nil
	})
}

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore(nil)
	st.AddMember("ws1", "ann", domain.RoleEditor)
	st.AddMember("ws1", "bob", domain.RoleEditor)
	st.AddDiagram(domain.Diagram{ID: "d1", WorkspaceID: "ws1"})
	o := orch.New(orch.Options{Store: st})

	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(o, queryResolver(), DefaultOptions())
	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?user=" + user
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, ackID int64, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(raw), "ackId": ackID}))
}

// readUntil reads frames until one matches, returning it.
func readUntil(t *testing.T, ws *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, ws.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func ackFor(id int64) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Event == protocol.EventAck && f.AckID != nil && *f.AckID == id }
}

func TestHandshakeRequiresIdentity(t *testing.T) {
	srv, o := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 0, o.Registry.Count())
}

func TestEndToEndDiagramSession(t *testing.T) {
	srv, o := newServer(t)
	ann := dial(t, srv, "ann")
	bob := dial(t, srv, "bob")

	send(t, ann, protocol.EventDiagramJoin, 1, map[string]any{"workspaceId": "ws1", "diagramId": "d1"})
	ack := readUntil(t, ann, ackFor(1))
	assert.JSONEq(t, `{"ok":true}`, string(ack.Data))

	send(t, bob, protocol.EventDiagramJoin, 1, map[string]any{"workspaceId": "ws1", "diagramId": "d1"})
	readUntil(t, bob, ackFor(1))

	send(t, ann, protocol.EventDiagramCursor, 2, map[string]any{"workspaceId": "ws1", "diagramId": "d1", "x": 3, "y": 4})
	cursor := readUntil(t, bob, func(f wireFrame) bool { return f.Event == protocol.EventDiagramCursor })
	var ev protocol.CursorEvent
	require.NoError(t, json.Unmarshal(cursor.Data, &ev))
	assert.Equal(t, domain.UserID("ann"), ev.UserID)
	assert.Equal(t, 3.0, ev.X)

	send(t, ann, "diagram:teleport", 3, nil)
	bad := readUntil(t, ann, ackFor(3))
	var fail protocol.Ack
	require.NoError(t, json.Unmarshal(bad.Data, &fail))
	assert.False(t, fail.OK)
	assert.Equal(t, string(domain.CodeInvalidPayload), fail.Code)

	send(t, ann, protocol.EventPing, 4, nil)
	readUntil(t, ann, func(f wireFrame) bool { return f.Event == protocol.EventPong })

	require.NoError(t, ann.Close())
	left := readUntil(t, bob, func(f wireFrame) bool { return f.Event == protocol.EventDiagramUserLeft })
	assert.JSONEq(t, `{"userId":"ann"}`, string(left.Data))
	require.Eventually(t, func() bool { return o.Registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestKickClosesSocket(t *testing.T) {
	srv, o := newServer(t)
	ann := dial(t, srv, "ann")
	require.Eventually(t, func() bool { return o.Registry.Count() == 1 }, time.Second, 10*time.Millisecond)

	for _, cid := range o.Registry.ConnectionsOfUser("ann") {
		assert.True(t, o.Kick(cid))
	}
	require.NoError(t, ann.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ann.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return o.Registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
