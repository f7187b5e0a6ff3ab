package registry

import (
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore is a bounded session store that drops the least-recently-
// used session once it reaches capacity, rather than growing
// unboundedly for the lifetime of the holepuncher. It is never the
// default; callers must opt in with NewLRU, since the default
// behavior is unbounded.
type LRUStore struct {
	cache *lru.Cache[string, *net.UDPAddr]
}

// NewLRU returns a Store that holds at most capacity sessions,
// evicting the least-recently-used entry to make room for a new one.
func NewLRU(capacity int) (*LRUStore, error) {
	cache, err := lru.New[string, *net.UDPAddr](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache}, nil
}

// Insert implements Store.
func (s *LRUStore) Insert(sessionID []byte, addr *net.UDPAddr) {
	s.cache.Add(key(sessionID), addr)
}

// Lookup implements Store.
func (s *LRUStore) Lookup(sessionID []byte) (*net.UDPAddr, bool) {
	return s.cache.Get(key(sessionID))
}
