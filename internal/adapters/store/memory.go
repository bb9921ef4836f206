package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dkeye/canvas-presence/internal/domain"
)

type idemKey struct {
	userID          domain.UserID
	clientMessageID string
}

// MemoryStore is an in-process store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	clock    clock.Clock
	members  map[string]map[domain.UserID]domain.Role
	diagrams map[string]domain.Diagram
	threads  map[string]domain.Thread
	messages map[string]domain.Message
	byClient map[idemKey]string
	order    []string
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		clock:    clk,
		members:  make(map[string]map[domain.UserID]domain.Role),
		diagrams: make(map[string]domain.Diagram),
		threads:  make(map[string]domain.Thread),
		messages: make(map[string]domain.Message),
		byClient: make(map[idemKey]string),
	}
}

func (s *MemoryStore) AddMember(workspaceID string, uid domain.UserID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.members[workspaceID]
	if !ok {
		ws = make(map[domain.UserID]domain.Role)
		s.members[workspaceID] = ws
	}
	ws[uid] = role
}

func (s *MemoryStore) RemoveMember(workspaceID string, uid domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[workspaceID], uid)
}

func (s *MemoryStore) AddDiagram(d domain.Diagram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagrams[d.ID] = d
}

func (s *MemoryStore) AddThread(t domain.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
}

func (s *MemoryStore) WorkspaceMembership(_ context.Context, workspaceID string, uid domain.UserID) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.members[workspaceID][uid]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	return domain.Membership{WorkspaceID: workspaceID, UserID: uid, Role: role}, nil
}

func (s *MemoryStore) Diagram(_ context.Context, diagramID string) (domain.Diagram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.diagrams[diagramID]
	if !ok {
		return domain.Diagram{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Thread(_ context.Context, threadID string) (domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return domain.Thread{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg domain.NewMessage) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[msg.ThreadID]; !ok {
		return domain.Message{}, fmt.Errorf("thread %s: %w", msg.ThreadID, domain.ErrNotFound)
	}
	key := idemKey{userID: msg.UserID, clientMessageID: msg.ClientMessageID}
	if _, dup := s.byClient[key]; dup {
		return domain.Message{}, domain.ErrDuplicateMessage
	}
	m := domain.Message{
		ID:              uuid.NewString(),
		ThreadID:        msg.ThreadID,
		UserID:          msg.UserID,
		Content:         msg.Content,
		ClientMessageID: msg.ClientMessageID,
		CreatedAt:       s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	s.messages[m.ID] = m
	s.byClient[key] = m.ID
	s.order = append(s.order, m.ID)
	return m, nil
}

func (s *MemoryStore) MessageByClientID(_ context.Context, uid domain.UserID, clientMessageID string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byClient[idemKey{userID: uid, clientMessageID: clientMessageID}]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return s.messages[id], nil
}

// Messages returns a thread's messages in insertion order.
func (s *MemoryStore) Messages(threadID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for _, id := range s.order {
		if m := s.messages[id]; m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out
}
