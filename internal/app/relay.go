package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
	"github.com/dkeye/canvas-presence/internal/protocol"
	"github.com/rs/zerolog/log"
)

type SendRequest struct {
	ThreadID        string
	Content         string
	UserID          domain.UserID
	ClientMessageID string
}

type SendResult struct {
	Message      domain.Message
	Thread       domain.Thread
	WasDuplicate bool
}

// Relay persists chat messages with idempotent retry on (user, client message id).
type Relay struct {
	gate  *Gate
	store core.Store
}

func NewRelay(gate *Gate, store core.Store) *Relay {
	return &Relay{gate: gate, store: store}
}

// Limiter admits or rejects a new chat message for a user.
type Limiter interface {
	Allow(uid domain.UserID) bool
}

// Send validates and persists one message. limit is charged only for sends
// that would create a message; rejected sends and retries of an already stored
// client message id are free. A nil limit admits everything.
func (r *Relay) Send(ctx context.Context, req SendRequest, limit Limiter) (SendResult, error) {
	thread, member, err := r.gate.RequireThreadAccess(ctx, req.ThreadID, req.UserID)
	if err != nil {
		return SendResult{}, err
	}
	if err := r.gate.RequireEditableRole(member.Role); err != nil {
		return SendResult{}, err
	}
	content := strings.TrimSpace(req.Content)
	if n := utf8.RuneCountInString(content); n == 0 || n > protocol.MaxContentLen {
		return SendResult{}, domain.NewError(domain.CodeInvalidPayload, "content must be 1-1000 characters")
	}

	existing, err := r.store.MessageByClientID(ctx, req.UserID, req.ClientMessageID)
	switch {
	case err == nil:
		return r.duplicate(req, thread, existing)
	case !errors.Is(err, domain.ErrNotFound):
		return SendResult{}, fmt.Errorf("look up %s: %w", req.ClientMessageID, err)
	}
	if limit != nil && !limit.Allow(req.UserID) {
		return SendResult{}, domain.NewError(domain.CodeRateLimited, "too many messages")
	}

	msg, err := r.store.CreateMessage(ctx, domain.NewMessage{
		ThreadID:        thread.ID,
		UserID:          req.UserID,
		Content:         content,
		ClientMessageID: req.ClientMessageID,
	})
	if errors.Is(err, domain.ErrDuplicateMessage) {
		// Lost a race with a concurrent send of the same id.
		existing, ferr := r.store.MessageByClientID(ctx, req.UserID, req.ClientMessageID)
		if ferr != nil {
			return SendResult{}, fmt.Errorf("load duplicate %s: %w", req.ClientMessageID, ferr)
		}
		return r.duplicate(req, thread, existing)
	}
	if err != nil {
		return SendResult{}, fmt.Errorf("create message: %w", err)
	}
	return SendResult{Message: msg, Thread: thread}, nil
}

// duplicate acknowledges a retry. A client message id already used in another
// thread is a different request and is rejected.
func (r *Relay) duplicate(req SendRequest, thread domain.Thread, existing domain.Message) (SendResult, error) {
	if existing.ThreadID != thread.ID {
		return SendResult{}, domain.NewError(domain.CodeInvalidPayload, "clientMessageId already used in another thread")
	}
	log.Debug().Str("module", "app.relay").Str("user", string(req.UserID)).
		Str("client_message_id", req.ClientMessageID).Msg("duplicate send")
	return SendResult{Message: existing, Thread: thread, WasDuplicate: true}, nil
}
