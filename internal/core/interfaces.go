package core

import (
	"context"
	"net/http"

	"github.com/dkeye/canvas-presence/internal/domain"
)

// ConnectionID identifies one live transport session (one browser tab).
type ConnectionID string

// Store is the persistent relational store, consumed only through lookups
// and message creation. Missing rows surface as domain.ErrNotFound; a
// (user, client message id) collision surfaces as domain.ErrDuplicateMessage.
type Store interface {
	WorkspaceMembership(ctx context.Context, workspaceID string, userID domain.UserID) (domain.Membership, error)
	Diagram(ctx context.Context, diagramID string) (domain.Diagram, error)
	Thread(ctx context.Context, threadID string) (domain.Thread, error)
	CreateMessage(ctx context.Context, msg domain.NewMessage) (domain.Message, error)
	MessageByClientID(ctx context.Context, userID domain.UserID, clientMessageID string) (domain.Message, error)
}

// IdentityResolver exchanges handshake credentials for a user.
// It never fails loudly: ok=false means the connection must be refused.
type IdentityResolver interface {
	Resolve(r *http.Request) (domain.User, bool)
}

// ResolverFunc adapts a plain function to IdentityResolver.
type ResolverFunc func(r *http.Request) (domain.User, bool)

func (f ResolverFunc) Resolve(r *http.Request) (domain.User, bool) { return f(r) }
