// Package engine implements the log-structured, hash-indexed storage
// engine: append-only segment files, an in-memory offset index, online
// background compaction, and a multi-reader/single-writer concurrency
// core that keeps reads unblocked during compaction via an epoch-based
// file lifecycle.
package engine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/kvstash/kvstash/internal/engine/record"
	"github.com/kvstash/kvstash/internal/engine/segment"
	"github.com/kvstash/kvstash/internal/logging"
	"github.com/kvstash/kvstash/internal/metrics"
)

// Engine is the polymorphic surface the server dispatches through. It is
// implemented by Store (the native bitcask-style backend) and by
// boltengine.Engine (the bbolt-backed alternate backend). The backend is
// chosen once at startup; each request then calls it through this interface.
type Engine interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Close() error

	// Clone returns a handle sharing the same underlying storage, safe to
	// use concurrently with the original and with other clones. The server
	// calls Clone once per dispatched task so each goroutine owns its own
	// read-side file handles without sharing file descriptors.
	Clone() Engine
}

// Store is the native "kvs" engine: the bitcask-style design specified in
// full. One Store owns one Writer (the exclusive append point) and hands
// out cheap Reader clones for concurrent lookups.
type Store struct {
	core    *core
	writer  *Writer
	reader  *Reader
	compact *Compactor
	closed  bool

	// owner is true only for the Store returned by Open. Clones share the
	// same Writer and must never close it; only the owner's Close does.
	owner bool
}

// Open builds the in-memory index by scanning the data directory's
// segment files, opens the highest epoch for append, and returns a ready
// Store. The data directory is created if missing. The "engine" marker
// file is checked (or created on first use) to prevent reopening a sled
// directory as kvs or vice versa.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}
	if err := CheckOrWriteMarker(cfg.Dir, BackendKVS); err != nil {
		return nil, err
	}

	c := newCore(cfg)

	epochs, err := segment.Discover(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var currentEpoch uint64
	if len(epochs) > 0 {
		currentEpoch = epochs[len(epochs)-1]
	}
	c.currentEpoch.Store(currentEpoch)
	c.tailEpoch.Store(epochLowerBound(epochs))

	if err := rebuildIndex(c, epochs); err != nil {
		return nil, err
	}
	if err := sweepOrphanedCompactionRemnants(c, epochs); err != nil {
		return nil, err
	}

	writer, err := newWriter(c, currentEpoch)
	if err != nil {
		return nil, err
	}

	compactor := newCompactor(c, writer)
	compactor.OnCompacted = func(reclaimedBytes int64) {
		metrics.CompactionsTotal.Inc()
		metrics.DeadBytes.Set(float64(writer.DeadBytes()))
	}

	return &Store{
		core:    c,
		writer:  writer,
		reader:  newReader(c),
		compact: compactor,
		owner:   true,
	}, nil
}

func epochLowerBound(epochs []uint64) uint64 {
	if len(epochs) == 0 {
		return 0
	}
	return epochs[0]
}

// rebuildIndex replays every discovered segment in ascending epoch order,
// keeping only the latest BinLocation per key, which is exactly what
// replaying records in ascending (epoch, offset) order through the index
// API naturally produces (every Set/Remove unconditionally overwrites).
func rebuildIndex(c *core, epochs []uint64) error {
	for _, epoch := range epochs {
		f, err := segment.OpenForRead(c.cfg.Dir, epoch)
		if err != nil {
			return err
		}

		offset, err := scanSegment(f, epoch, c)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("engine: rebuild index from epoch %d: %w", epoch, err)
		}
		if closeErr != nil {
			return closeErr
		}
		_ = offset
	}
	return nil
}

func scanSegment(f *os.File, epoch uint64, c *core) (int64, error) {
	var offset int64
	buf := bufReaderFor(f)
	for {
		rec, n, err := record.Decode(buf)
		if err != nil {
			if isEOF(err) {
				return offset, nil
			}
			if isCorruption(err) {
				if _, peekErr := buf.Peek(1); peekErr == nil {
					// More log follows the damaged record, so it is not a
					// torn final append: report it.
					return offset, err
				}
				// A truncated trailing record means the process crashed
				// mid-append to what was then the active segment. Tolerate
				// it by cutting the file back to the last whole record, so
				// the next write to this epoch (if it is still current)
				// starts where a later scan expects a record.
				if err := os.Truncate(f.Name(), offset); err != nil {
					return offset, fmt.Errorf("engine: drop torn record in epoch %d: %w", epoch, err)
				}
				return offset, nil
			}
			return offset, err
		}

		loc := indexLocation(epoch, offset, int64(n))
		offset += int64(n)

		switch rec.Op {
		case record.OpSet:
			old, existed := c.idx.Insert(rec.Key, loc)
			if existed {
				c.liveBytes.Add(-old.Length)
			}
			c.liveBytes.Add(loc.Length)
		case record.OpRemove:
			old, existed := c.idx.Remove(rec.Key)
			if existed {
				c.liveBytes.Add(-old.Length)
			}
		}
	}
}

// Get returns the current value for key, or found=false if it is absent.
func (s *Store) Get(key string) (value string, found bool, err error) {
	if s.closed {
		return "", false, ErrClosed
	}
	return s.reader.Get(key)
}

// Set stores key/value and, if the resulting dead-byte pressure crosses
// the configured threshold, asynchronously triggers a compaction cycle.
// The append and index update happen synchronously and atomically from
// the caller's point of view; the compaction itself runs in the
// background and never blocks the caller.
func (s *Store) Set(key, value string) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.writer.Set(key, value); err != nil {
		return err
	}
	s.maybeCompactAsync()
	return nil
}

// Remove deletes key, failing with ErrKeyNotFound if it has no current
// entry.
func (s *Store) Remove(key string) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.writer.Remove(key); err != nil {
		return err
	}
	s.maybeCompactAsync()
	return nil
}

func (s *Store) maybeCompactAsync() {
	if !s.writer.MayCompact() {
		return
	}
	if !s.core.compacting.CompareAndSwap(false, true) {
		return // a compaction triggered by another goroutine is already in flight
	}
	go func() {
		defer s.core.compacting.Store(false)
		if err := s.compact.Run(); err != nil {
			logging.Error("compaction failed", zap.Error(err))
		}
	}()
}

// Clone returns a Store sharing this one's core and writer but owning an
// independent Reader, so the clone's file handles are never shared with
// the original's. Safe to call from any goroutine.
func (s *Store) Clone() Engine {
	return &Store{
		core:    s.core,
		writer:  s.writer,
		reader:  newReader(s.core),
		compact: s.compact,
	}
}

// NewReader returns a fresh, independent Reader over this Store's
// underlying core. Exposed for callers (tests, benchmarks) that want
// direct reader-level control rather than going through Get.
func (s *Store) NewReader() *Reader {
	return newReader(s.core)
}

// Writer exposes the underlying Writer for callers that need direct
// access to Flush or dead-byte accounting, mainly tests.
func (s *Store) Writer() *Writer { return s.writer }

// Compact runs one compaction cycle synchronously, first waiting for any
// background cycle already in flight. Exposed for tests and for a
// CLI/administrative trigger; production traffic relies on the automatic
// trigger inside Set/Remove.
func (s *Store) Compact() error {
	for !s.core.compacting.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
	defer s.core.compacting.Store(false)
	return s.compact.Run()
}

// CurrentEpoch and TailEpoch expose the atomic registers for diagnostics
// and the index/tail monotonicity property tests.
func (s *Store) CurrentEpoch() uint64 { return s.core.CurrentEpoch() }
func (s *Store) TailEpoch() uint64    { return s.core.TailEpoch() }

// Close releases this Store's own Reader handles. Only the Store returned
// by Open also closes the shared Writer; a clone's Close must never close
// the Writer another handle is still actively appending through.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	readerErr := s.reader.Close()
	if !s.owner {
		return readerErr
	}

	writerErr := s.writer.Close()
	if writerErr != nil {
		return writerErr
	}
	return readerErr
}
