// Package index implements the engine's concurrent key->location map.
//
// It is lock-striped rather than lock-free: keys are hashed into a fixed
// number of shards, each guarded by its own sync.RWMutex, so operations on
// disjoint keys never contend. This mirrors the original engine's use of a
// concurrent hash map (concurrent_hashmap::ConcHashMap) without requiring a
// lock-free data structure in Go.
package index

import (
	"hash/maphash"
	"sync"
)

// BinLocation identifies the byte range of the authoritative record for a
// key: which epoch's segment file, at what offset, for how many bytes.
type BinLocation struct {
	Epoch  uint64
	Offset int64
	Length int64
}

const shardCount = 64

type shard struct {
	mu sync.RWMutex
	m  map[string]BinLocation
}

// Index is a concurrent mapping of key to BinLocation. The zero value is
// not usable; use New.
type Index struct {
	seed   maphash.Seed
	shards [shardCount]*shard
}

func New() *Index {
	idx := &Index{seed: maphash.MakeSeed()}
	for i := range idx.shards {
		idx.shards[i] = &shard{m: make(map[string]BinLocation)}
	}
	return idx
}

func (idx *Index) shardFor(key string) *shard {
	var h maphash.Hash
	h.SetSeed(idx.seed)
	h.WriteString(key)
	return idx.shards[h.Sum64()%shardCount]
}

// Get returns the location for key and whether it is present.
func (idx *Index) Get(key string) (BinLocation, bool) {
	s := idx.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.m[key]
	return loc, ok
}

// Insert sets key's location unconditionally, returning the previous
// location if one existed (used by the writer to compute dead-byte deltas).
func (idx *Index) Insert(key string, loc BinLocation) (BinLocation, bool) {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, existed := s.m[key]
	s.m[key] = loc
	return old, existed
}

// Remove deletes key's entry, returning the removed location if one existed.
func (idx *Index) Remove(key string) (BinLocation, bool) {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, existed := s.m[key]
	if existed {
		delete(s.m, key)
	}
	return old, existed
}

// CompareAndSwap replaces key's location with next only if its current
// location is still exactly old. Used by the compactor's republish step so
// a key overwritten during rewrite is not resurrected to its stale epoch.
// Reports whether the swap happened.
func (idx *Index) CompareAndSwap(key string, old, next BinLocation) bool {
	s := idx.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[key]
	if !ok || cur != old {
		return false
	}
	s.m[key] = next
	return true
}

// ForEach calls f for every (key, location) pair present at the time each
// shard is visited. It is not a single atomic snapshot of the whole index:
// each shard is copied under its own read lock independently, and f runs
// after that lock is released, so f may itself update the index (the
// compactor's CAS-based republish step does).
func (idx *Index) ForEach(f func(key string, loc BinLocation)) {
	for _, s := range idx.shards {
		s.mu.RLock()
		entries := make(map[string]BinLocation, len(s.m))
		for k, v := range s.m {
			entries[k] = v
		}
		s.mu.RUnlock()
		for k, v := range entries {
			f(k, v)
		}
	}
}

// Len returns the number of entries across all shards. Approximate under
// concurrent mutation, intended for metrics/diagnostics only.
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// MinEpoch returns the lowest epoch referenced by any entry, and whether
// the index is non-empty. Used to check the tail_epoch <= min(epoch) <=
// current_epoch invariant in tests and diagnostics.
func (idx *Index) MinEpoch() (uint64, bool) {
	var (
		min   uint64
		found bool
	)
	idx.ForEach(func(_ string, loc BinLocation) {
		if !found || loc.Epoch < min {
			min = loc.Epoch
			found = true
		}
	})
	return min, found
}
