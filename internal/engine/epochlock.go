package engine

import "sync"

// epochLockTable maps an epoch to a shared/exclusive lock guarding access
// to that epoch's segment file. Readers take the shared side while
// decoding a record; the compactor takes the exclusive side only to
// retire (unlink) a file once it is no longer referenced by the index.
type epochLockTable struct {
	mu    sync.Mutex
	locks map[uint64]*sync.RWMutex
}

func newEpochLockTable() *epochLockTable {
	return &epochLockTable{locks: make(map[uint64]*sync.RWMutex)}
}

// lockFor returns the RWMutex for epoch, creating one on first access.
func (t *epochLockTable) lockFor(epoch uint64) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[epoch]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[epoch] = l
	}
	return l
}

// drop removes epoch's lock entry entirely. Must only be called once the
// exclusive side has been acquired and released by the retiring caller, so
// no reader can still be holding a reference into locks[epoch] across the
// delete (reads take the lock object via lockFor before releasing it, so a
// concurrent lockFor racing the delete simply recreates a fresh, unheld
// entry, which is harmless: the file is gone, and a new open attempt fails
// with a plain not-exist error).
func (t *epochLockTable) drop(epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, epoch)
}
