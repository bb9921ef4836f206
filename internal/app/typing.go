package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/canvas-presence/internal/core"
	"github.com/dkeye/canvas-presence/internal/domain"
)

// TypingKey identifies one user's typing state in one thread.
type TypingKey struct {
	ThreadID string
	UserID   domain.UserID
}

// Typing ref-counts composing state across a user's connections.
type Typing struct {
	mu sync.Mutex
	// entries maps a key to its contributing connections and their last refresh.
	entries  map[TypingKey]map[core.ConnectionID]time.Time
	bySocket map[core.ConnectionID]map[TypingKey]struct{}
}

func NewTyping() *Typing {
	return &Typing{
		entries:  make(map[TypingKey]map[core.ConnectionID]time.Time),
		bySocket: make(map[core.ConnectionID]map[TypingKey]struct{}),
	}
}

// Start marks cid as typing and reports whether the user just became typing.
func (t *Typing) Start(threadID string, uid domain.UserID, cid core.ConnectionID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := TypingKey{ThreadID: threadID, UserID: uid}
	conns, ok := t.entries[key]
	if !ok {
		conns = make(map[core.ConnectionID]time.Time)
		t.entries[key] = conns
	}
	first := len(conns) == 0
	conns[cid] = now
	keys, ok := t.bySocket[cid]
	if !ok {
		keys = make(map[TypingKey]struct{})
		t.bySocket[cid] = keys
	}
	keys[key] = struct{}{}
	return first
}

// Stop clears cid and reports whether it was the user's last typing connection.
func (t *Typing) Stop(threadID string, uid domain.UserID, cid core.ConnectionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked(TypingKey{ThreadID: threadID, UserID: uid}, cid)
}

func (t *Typing) stopLocked(key TypingKey, cid core.ConnectionID) bool {
	conns, ok := t.entries[key]
	if !ok {
		return false
	}
	if _, ok := conns[cid]; !ok {
		return false
	}
	delete(conns, cid)
	if keys, ok := t.bySocket[cid]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(t.bySocket, cid)
		}
	}
	if len(conns) == 0 {
		delete(t.entries, key)
		return true
	}
	return false
}

// StopAllForSocket clears every entry cid contributes to and returns the keys
// that transitioned to not typing.
func (t *Typing) StopAllForSocket(cid core.ConnectionID) []TypingKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TypingKey
	for key := range t.bySocket[cid] {
		if t.stopLocked(key, cid) {
			out = append(out, key)
		}
	}
	sortKeys(out)
	return out
}

// Expire drops connections not refreshed since cutoff and returns the keys
// that transitioned to not typing.
func (t *Typing) Expire(cutoff time.Time) []TypingKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TypingKey
	for key, conns := range t.entries {
		for cid, at := range conns {
			if at.Before(cutoff) && t.stopLocked(key, cid) {
				out = append(out, key)
			}
		}
	}
	sortKeys(out)
	return out
}

func (t *Typing) IsTyping(threadID string, uid domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[TypingKey{ThreadID: threadID, UserID: uid}]) > 0
}

func sortKeys(keys []TypingKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ThreadID != keys[j].ThreadID {
			return keys[i].ThreadID < keys[j].ThreadID
		}
		return keys[i].UserID < keys[j].UserID
	})
}
