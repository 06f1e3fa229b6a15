package socket

import "testing"

func TestRegisterReturnsDisplacedSession(t *testing.T) {
	t.Parallel()
	h := NewHub()
	a := &Session{id: "s-a", agentID: "a1"}
	b := &Session{id: "s-b", agentID: "a1"}

	if old := h.Register("a1", a); old != nil {
		t.Fatalf("first register should displace nothing, got %v", old)
	}
	if !h.IsOnline("a1") {
		t.Fatal("agent should be online after register")
	}

	old := h.Register("a1", b)
	if old != a {
		t.Fatal("second register must hand back the first session")
	}
	if h.Get("a1") != b {
		t.Fatal("hub must now hold the newer session")
	}
}

func TestUnregisterOnlyRemovesCurrent(t *testing.T) {
	t.Parallel()
	h := NewHub()
	a := &Session{id: "s-a", agentID: "a1"}
	b := &Session{id: "s-b", agentID: "a1"}
	h.Register("a1", a)
	h.Register("a1", b)

	// The superseded session's teardown must not evict its
	// replacement.
	if h.Unregister("a1", a) {
		t.Fatal("stale session should not unregister")
	}
	if h.Get("a1") != b {
		t.Fatal("current session evicted by stale teardown")
	}

	if !h.Unregister("a1", b) {
		t.Fatal("current session should unregister")
	}
	if h.IsOnline("a1") {
		t.Fatal("agent should be offline after unregister")
	}
}

func TestOnlineIDsAndCount(t *testing.T) {
	t.Parallel()
	h := NewHub()
	h.Register("a1", &Session{id: "s1"})
	h.Register("a2", &Session{id: "s2"})
	if h.Count() != 2 {
		t.Fatalf("expected 2 online, got %d", h.Count())
	}
	ids := h.OnlineIDs()
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["a1"] || !seen["a2"] {
		t.Fatalf("online ids wrong: %v", ids)
	}
}
