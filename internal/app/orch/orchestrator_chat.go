package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
)

// SendChat persists and relays a chat message. A retried send with the same
// client message id is acknowledged again but never re-broadcast.
func (o *Orchestrator) SendChat(ctx context.Context, conn app.Conn, p *protocol.ChatSend) (protocol.SentAck, error) {
	var limit app.Limiter
	if o.Limiter != nil {
		limit = o.Limiter
	}
	res, err := o.Relay.Send(ctx, app.SendRequest{
		ThreadID:        p.ThreadID,
		Content:         p.Content,
		UserID:          conn.User.ID,
		ClientMessageID: p.ClientMessageID,
	}, limit)
	if err != nil {
		return protocol.SentAck{}, err
	}
	ack := protocol.SentAck{
		ThreadID:        res.Thread.ID,
		MessageID:       res.Message.ID,
		ClientMessageID: res.Message.ClientMessageID,
		WasDuplicate:    res.WasDuplicate,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	room := domain.ThreadRoom(res.Thread.ID)
	if !res.WasDuplicate {
		o.broadcast(room, "", protocol.EventChatNewMessage, protocol.NewMessageEvent{Message: protocol.ChatMessage{
			ID:              res.Message.ID,
			ThreadID:        res.Message.ThreadID,
			Content:         res.Message.Content,
			ClientMessageID: res.Message.ClientMessageID,
			CreatedAt:       res.Message.CreatedAt.UTC().Format(time.RFC3339),
			Author:          protocol.ChatAuthor{UserID: conn.User.ID, Name: conn.User.Name, Image: conn.User.Image},
		}})
	}
	if !o.alive(conn.ID) {
		return ack, nil
	}
	o.sendTo(conn.ID, protocol.EventChatSentAck, ack)
	if o.Typing.Stop(res.Thread.ID, conn.User.ID, conn.ID) {
		o.broadcastTyping(conn.ID, app.TypingKey{ThreadID: res.Thread.ID, UserID: conn.User.ID}, false)
	}
	log.Debug().Str("module", "orch").Str("conn", string(conn.ID)).Str("thread", res.Thread.ID).
		Bool("duplicate", res.WasDuplicate).Msg("chat send")
	return ack, nil
}

func (o *Orchestrator) TypingStart(ctx context.Context, conn app.Conn, threadID string) error {
	if _, _, err := o.Gate.RequireThreadAccess(ctx, threadID, conn.User.ID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive(conn.ID) {
		return nil
	}
	if o.Typing.Start(threadID, conn.User.ID, conn.ID, o.Clock.Now()) {
		o.broadcastTyping(conn.ID, app.TypingKey{ThreadID: threadID, UserID: conn.User.ID}, true)
	}
	return nil
}

func (o *Orchestrator) TypingStop(ctx context.Context, conn app.Conn, threadID string) error {
	if _, _, err := o.Gate.RequireThreadAccess(ctx, threadID, conn.User.ID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Typing.Stop(threadID, conn.User.ID, conn.ID) {
		o.broadcastTyping(conn.ID, app.TypingKey{ThreadID: threadID, UserID: conn.User.ID}, false)
	}
	return nil
}

// SweepTyping expires typing entries not refreshed within TypingTTL.
func (o *Orchestrator) SweepTyping() int {
	if o.TypingTTL <= 0 {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	expired := o.Typing.Expire(o.Clock.Now().Add(-o.TypingTTL))
	for _, k := range expired {
		o.broadcastTyping("", k, false)
	}
	return len(expired)
}

// RunTypingSweeper sweeps every interval until ctx is done.
func (o *Orchestrator) RunTypingSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || o.TypingTTL <= 0 {
		return
	}
	ticker := o.Clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("typing sweeper stopped")
			return
		case <-ticker.C:
			if n := o.SweepTyping(); n > 0 {
				log.Debug().Str("module", "orch").Int("expired", n).Msg("typing sweep")
			}
			if o.Limiter != nil {
				o.Limiter.Forget()
			}
		}
	}
}

func (o *Orchestrator) broadcastTyping(except core.ConnectionID, k app.TypingKey, typing bool) {
	o.broadcast(domain.ThreadRoom(k.ThreadID), except, protocol.EventChatTyping,
		protocol.TypingEvent{ThreadID: k.ThreadID, UserID: k.UserID, IsTyping: typing})
}
