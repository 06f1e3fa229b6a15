package socket

import (
	"sync"
)

// Hub is the registry of live sessions, one per agent id. A newer
// session for the same agent supersedes the older one: Register makes
// the new session visible and hands back the old one, which the caller
// closes with code 4000.
type Hub struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewHub() *Hub { return &Hub{byID: make(map[string]*Session)} }

// Register installs s as the agent's session and returns the session
// it displaced, if any. The caller closes the displaced one.
func (h *Hub) Register(agentID string, s *Session) *Session {
	h.mu.Lock()
	old := h.byID[agentID]
	h.byID[agentID] = s
	h.mu.Unlock()
	if old == s {
		return nil
	}
	return old
}

// Unregister removes the session only if it is still the current one,
// so a superseded session's teardown cannot evict its replacement.
// Returns whether a removal happened.
func (h *Hub) Unregister(agentID string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.byID[agentID]; ok && cur == s {
		delete(h.byID, agentID)
		return true
	}
	return false
}

func (h *Hub) Get(agentID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[agentID]
}

func (h *Hub) IsOnline(agentID string) bool {
	return h.Get(agentID) != nil
}

func (h *Hub) OnlineIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byID))
	for id := range h.byID {
		out = append(out, id)
	}
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// CloseAll shuts every session down gracefully (coordinator shutdown).
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.byID))
	for _, s := range h.byID {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.CloseGraceful()
	}
}
