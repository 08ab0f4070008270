// Package session is the opaque session key store (spec §4.7 C11):
// UUID-style keys mapped to user ids, with collision-retry allocation.
package session

import (
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/google/uuid"
)

// Store maps session keys to user ids. Sharded so concurrent WebSocket
// upgrades and HTTP logins across many users don't contend on one lock.
type Store struct {
	sessions cmap.ConcurrentMap[string, string] // key -> userId
}

// New constructs an empty session store.
func New() *Store {
	return &Store{sessions: cmap.New[string]()}
}

// Alloc mints a fresh session key for userID, retrying on the
// astronomically unlikely event of a UUID collision (spec §4.7).
func (s *Store) Alloc(userID string) string {
	for {
		key := uuid.NewString()
		if s.sessions.SetIfAbsent(key, userID) {
			return key
		}
	}
}

// Get returns the user id associated with key, if any.
func (s *Store) Get(key string) (userID string, ok bool) {
	return s.sessions.Get(key)
}

// Revoke drops a session key (e.g. logout).
func (s *Store) Revoke(key string) {
	s.sessions.Remove(key)
}
