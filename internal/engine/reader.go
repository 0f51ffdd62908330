package engine

import (
	"fmt"
	"os"

	"github.com/kvstash/kvstash/internal/engine/index"
	"github.com/kvstash/kvstash/internal/engine/record"
	"github.com/kvstash/kvstash/internal/engine/segment"
)

// Reader is a cheap to create, NOT thread-safe handle for looking up
// values. Each Reader owns its own epoch->open-file-handle table; handles
// are opened lazily and never shared across Readers, so independent
// goroutines reading concurrently never contend on a single *os.File.
//
// Construct one per goroutine (or per connection) via Store.NewReader;
// never share a Reader across goroutines.
type Reader struct {
	core    *core
	handles map[uint64]*os.File
}

func newReader(c *core) *Reader {
	return &Reader{core: c, handles: make(map[uint64]*os.File)}
}

// Get looks up key and returns its value, or found=false if the key is
// absent or was concurrently removed (a Remove tombstone resolves to
// not-found here, same as a missing index entry).
func (r *Reader) Get(key string) (value string, found bool, err error) {
	loc, ok := r.core.idx.Get(key)
	if !ok {
		return "", false, nil
	}

	rec, err := r.readAt(loc)
	for err != nil {
		// A compaction may have moved key and retired the epoch loc named
		// between the index lookup and the read; follow the key to its new
		// location, and report the error only if the index did not move.
		cur, ok := r.core.idx.Get(key)
		if !ok {
			return "", false, nil
		}
		if cur == loc {
			return "", false, err
		}
		loc = cur
		rec, err = r.readAt(loc)
	}
	if rec.Op == record.OpRemove {
		return "", false, nil
	}
	return rec.Value, true, nil
}

// readAt decodes the record named by loc, performing opportunistic cleanup
// of stale handles first and acquiring loc.Epoch's shared lock only for
// the duration of the seek+decode.
func (r *Reader) readAt(loc index.BinLocation) (record.Record, error) {
	r.cleanupStale()

	lock := r.core.locks.lockFor(loc.Epoch)
	lock.RLock()
	defer lock.RUnlock()

	f, err := r.openEpoch(loc.Epoch)
	if err != nil {
		return record.Record{}, err
	}

	return record.DecodeAt(f, loc.Offset, loc.Length)
}

func (r *Reader) openEpoch(epoch uint64) (*os.File, error) {
	if f, ok := r.handles[epoch]; ok {
		return f, nil
	}
	f, err := segment.OpenForRead(r.core.cfg.Dir, epoch)
	if err != nil {
		return nil, fmt.Errorf("engine: reader open epoch %d: %w", epoch, err)
	}
	r.handles[epoch] = f
	return f, nil
}

// cleanupStale closes and forgets any handle for an epoch below the
// current tail_epoch. This bounds open file descriptors to O(live epochs)
// per Reader regardless of how long-lived the Reader is.
func (r *Reader) cleanupStale() {
	tail := r.core.tailEpoch.Load()
	for epoch, f := range r.handles {
		if epoch < tail {
			f.Close()
			delete(r.handles, epoch)
		}
	}
}

// Close releases every open file handle held by this Reader. Safe to call
// more than once.
func (r *Reader) Close() error {
	var firstErr error
	for epoch, f := range r.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, epoch)
	}
	return firstErr
}
