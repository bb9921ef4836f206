package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/metrics"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

type Orchestrator struct {
	Registry   *app.Registry
	Rooms      *app.RoomManagerImpl
	Policy     app.Policy
	Workspaces *app.WorkspacePresence
	Diagrams   *app.DiagramPresence
	Typing     *app.Typing
	Gate       *app.Gate
	Relay      *app.Relay
	Limiter    *app.RateLimiter
	Validator  *protocol.Validator
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	TypingTTL  time.Duration

	// mu serializes the mutate-and-broadcast phase of every handler.
	// Store lookups run before it is taken.
	mu sync.Mutex
}

type Options struct {
	Store            core.Store
	Metrics          *metrics.Metrics
	Clock            clock.Clock
	Policy           app.Policy
	AuthzCacheSize   int
	AuthzCacheTTL    time.Duration
	TypingTTL        time.Duration
	ChatRateLimit    int
	ChatRateInterval time.Duration
}

func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	rooms := app.NewRoomManager()
	gate := app.NewGate(opts.Store, opts.Metrics, opts.AuthzCacheSize, opts.AuthzCacheTTL)
	return &Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      rooms,
		Policy:     opts.Policy,
		Workspaces: app.NewWorkspacePresence(),
		Diagrams:   app.NewDiagramPresence(rooms),
		Typing:     app.NewTyping(),
		Gate:       gate,
		Relay:      app.NewRelay(gate, opts.Store),
		Limiter:    app.NewRateLimiter(opts.Clock, opts.ChatRateLimit, opts.ChatRateInterval),
		Validator:  protocol.NewValidator(),
		Clock:      opts.Clock,
		Metrics:    opts.Metrics,
		TypingTTL:  opts.TypingTTL,
	}
}

// Connect registers a freshly upgraded connection.
func (o *Orchestrator) Connect(conn app.Conn, cancel context.CancelFunc) {
	o.Registry.Bind(conn, cancel)
	o.Metrics.Connections.Inc()
}

// Dispatch decodes, authorizes and applies one inbound event. It never
// panics and never returns an error: failures travel in the ack.
func (o *Orchestrator) Dispatch(ctx context.Context, cid core.ConnectionID, event string, raw json.RawMessage) (ack protocol.Ack) {
	label, known := protocol.Canonical(event)
	if !known {
		label = "unknown"
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "orch").Str("conn", string(cid)).Str("event", event).
				Interface("panic", r).Msg("handler panic")
			o.Metrics.ObserveEvent(label, metrics.OutcomePanic)
			ack = protocol.Fail(fmt.Errorf("panic in %s: %v", event, r))
		}
	}()

	data, err := o.dispatch(ctx, cid, event, raw)
	if err != nil {
		o.logFailure(cid, event, err)
		o.Metrics.ObserveEvent(label, metrics.OutcomeError)
		return protocol.Fail(err)
	}
	o.Metrics.ObserveEvent(label, metrics.OutcomeOK)
	return protocol.OK(data)
}

func (o *Orchestrator) dispatch(ctx context.Context, cid core.ConnectionID, event string, raw json.RawMessage) (any, error) {
	conn, ok := o.Registry.Get(cid)
	if !ok {
		return nil, fmt.Errorf("connection %s is not registered", cid)
	}
	payload, err := o.Validator.Decode(event, raw)
	if err != nil {
		return nil, err
	}
	switch p := payload.(type) {
	case *protocol.AuthInit:
		return nil, o.InitContext(ctx, conn, p)
	case *protocol.PresenceUpdate:
		return nil, o.UpdatePresence(ctx, conn, p)
	case *protocol.DiagramJoin:
		return nil, o.JoinDiagram(ctx, conn, protocol.DiagramRef(*p))
	case *protocol.DiagramLeave:
		return nil, o.LeaveDiagram(ctx, conn, protocol.DiagramRef(*p))
	case *protocol.DiagramHeartbeat:
		return nil, o.Heartbeat(ctx, conn, protocol.DiagramRef(*p))
	case *protocol.DiagramCursor:
		return nil, o.Cursor(ctx, conn, p)
	case *protocol.DiagramSelection:
		return nil, o.Selection(ctx, conn, p)
	case *protocol.DocumentUpdated:
		return nil, o.DocumentUpdated(ctx, conn, p)
	case *protocol.ChatSend:
		return o.SendChat(ctx, conn, p)
	case *protocol.ChatTypingStart:
		return nil, o.TypingStart(ctx, conn, p.ThreadID)
	case *protocol.ChatTypingStop:
		return nil, o.TypingStop(ctx, conn, p.ThreadID)
	case *protocol.Ping:
		return o.Pong(conn), nil
	default:
		return nil, fmt.Errorf("no handler for %T", payload)
	}
}

func (o *Orchestrator) logFailure(cid core.ConnectionID, event string, err error) {
	if domain.IsExpected(err) {
		log.Debug().Str("module", "orch").Str("conn", string(cid)).Str("event", event).
			Str("code", string(domain.CodeOf(err))).Msg(err.Error())
		return
	}
	log.Error().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("event", event).Msg("event failed")
}

// PongEvent carries the server time in unix millis.
type PongEvent struct {
	T int64 `json:"t"`
}

func (o *Orchestrator) Pong(conn app.Conn) PongEvent {
	pong := PongEvent{T: o.now()}
	o.sendTo(conn.ID, protocol.EventPong, pong)
	return pong
}

func (o *Orchestrator) now() int64 { return o.Clock.Now().UnixMilli() }

// alive reports whether cid is still registered. Handlers call it after
// taking mu, since the connection may have closed during authorization.
func (o *Orchestrator) alive(cid core.ConnectionID) bool {
	return o.Registry.Has(cid)
}

func (o *Orchestrator) sendTo(cid core.ConnectionID, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode")
		return
	}
	conn, ok := o.Registry.Get(cid)
	if !ok {
		return
	}
	if err := conn.Signal.TrySend(frame); err != nil && !errors.Is(err, core.ErrConnClosed) {
		o.onDropped("", []core.ConnectionID{cid})
	}
}

func (o *Orchestrator) broadcast(room domain.RoomID, except core.ConnectionID, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode")
		return
	}
	res := o.Rooms.Broadcast(room, except, frame)
	if len(res.Dropped) > 0 {
		o.onDropped(room, res.Dropped)
	}
}

func (o *Orchestrator) onDropped(room domain.RoomID, dropped []core.ConnectionID) {
	o.Metrics.BroadcastDropped.Add(float64(len(dropped)))
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(room)).Str("conn", string(slow)).Msg("kicking slow connection")
			o.Registry.Cancel(slow)
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("room", string(room)).Str("conn", string(slow)).Msg("frame dropped")
		case app.MarkSlow, app.NoAction:
		}
	}
}
