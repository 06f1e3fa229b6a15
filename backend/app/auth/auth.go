// Package auth resolves device bearer tokens to agent identities.
// Tokens are configuration, not database rows, and must never reach a
// log line; only the derived agent id may.
package auth

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

type Authenticator struct {
	mapped  map[string]string // token -> explicit agent_id
	derived []string          // tokens whose agent_id is hash-derived
	hashKey []byte
}

// New builds an authenticator from the two config forms: an explicit
// token -> agent_id map, and a plain token list whose identities are
// derived with a keyed blake2b hash so the mapping is stable across
// restarts and coordinators sharing the key.
func New(mapped map[string]string, derived []string, hashKey string) *Authenticator {
	m := make(map[string]string, len(mapped))
	for tok, id := range mapped {
		m[tok] = id
	}
	key := []byte(hashKey)
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &Authenticator{mapped: m, derived: derived, hashKey: key}
}

// Resolve returns the agent id for a valid token. Comparison is
// constant-time across every configured token so the lookup leaks
// nothing about near-misses.
func (a *Authenticator) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	tb := []byte(token)
	agentID := ""
	found := false
	for candidate, id := range a.mapped {
		if subtle.ConstantTimeCompare(tb, []byte(candidate)) == 1 {
			agentID, found = id, true
		}
	}
	mappedHit := found
	for _, candidate := range a.derived {
		// An explicit mapping wins over derivation.
		if subtle.ConstantTimeCompare(tb, []byte(candidate)) == 1 && !mappedHit {
			agentID, found = a.DeriveID(token), true
		}
	}
	return agentID, found
}

// DeriveID maps a token to its agent id: the first 16 hex characters of
// a keyed blake2b-256 over the token bytes.
func (a *Authenticator) DeriveID(token string) string {
	h, err := blake2b.New256(a.hashKey)
	if err != nil {
		// Only a too-long key can fail, and New trims it.
		panic(err)
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Count reports how many tokens are configured, for the startup log.
func (a *Authenticator) Count() int {
	return len(a.mapped) + len(a.derived)
}
