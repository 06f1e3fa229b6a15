package auth

import "testing"

func TestResolveMappedToken(t *testing.T) {
	t.Parallel()
	a := New(map[string]string{"secret-1": "web-1"}, nil, "k")
	id, ok := a.Resolve("secret-1")
	if !ok || id != "web-1" {
		t.Fatalf("expected web-1, got %q ok=%v", id, ok)
	}
}

func TestResolveDerivedTokenIsStable(t *testing.T) {
	t.Parallel()
	a := New(nil, []string{"tok-abc"}, "hash-key")
	id1, ok := a.Resolve("tok-abc")
	if !ok {
		t.Fatal("token should resolve")
	}
	id2, _ := a.Resolve("tok-abc")
	if id1 != id2 {
		t.Fatalf("derivation must be deterministic: %q vs %q", id1, id2)
	}
	if len(id1) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", id1)
	}

	// Same token, different key: different fleet identity.
	b := New(nil, []string{"tok-abc"}, "other-key")
	id3, _ := b.Resolve("tok-abc")
	if id3 == id1 {
		t.Fatal("different hash keys must yield different ids")
	}
}

func TestResolveUnknownToken(t *testing.T) {
	t.Parallel()
	a := New(map[string]string{"secret-1": "web-1"}, []string{"tok-abc"}, "k")
	if _, ok := a.Resolve("wrong"); ok {
		t.Fatal("unknown token must not resolve")
	}
	if _, ok := a.Resolve(""); ok {
		t.Fatal("empty token must not resolve")
	}
}

func TestMappedWinsOverDerivation(t *testing.T) {
	t.Parallel()
	a := New(map[string]string{"tok": "named"}, []string{"tok"}, "k")
	id, ok := a.Resolve("tok")
	if !ok || id != "named" {
		t.Fatalf("explicit mapping must win, got %q", id)
	}
}
