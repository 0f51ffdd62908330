package engine

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/kvstash/kvstash/internal/engine/index"
	"github.com/kvstash/kvstash/internal/engine/record"
	"github.com/kvstash/kvstash/internal/engine/segment"
)

// Writer is the exclusive owner of the active append point. All mutation
// (Set, Remove) is serialized behind mu: exactly one goroutine appends at
// a time, which is what makes "append then index-update" atomic from the
// perspective of any reader.
type Writer struct {
	core *core

	mu    sync.Mutex
	file  *os.File
	epoch uint64

	deadBytes atomic.Int64
}

func newWriter(c *core, epoch uint64) (*Writer, error) {
	f, err := segment.OpenForAppend(c.cfg.Dir, epoch)
	if err != nil {
		return nil, err
	}
	return &Writer{core: c, file: f, epoch: epoch}, nil
}

// Set appends a Set record for key/value to the active segment and then
// publishes the new BinLocation in the index. A failed append never
// reaches the index update.
func (w *Writer) Set(key, value string) error {
	return w.append(record.NewSet(key, value), key)
}

// Remove appends a Remove record for key, deleting its index entry. It
// fails with ErrKeyNotFound if key has no current entry; presence is
// checked before the record is written, so a remove of an absent key
// never reaches the log.
func (w *Writer) Remove(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	old, existed := w.core.idx.Get(key)
	if !existed {
		return ErrKeyNotFound
	}

	if _, err := w.writeLocked(record.NewRemove(key)); err != nil {
		return err
	}

	w.core.idx.Remove(key)
	w.accountShadowed(old)
	return nil
}

func (w *Writer) append(rec record.Record, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, err := w.writeLocked(rec)
	if err != nil {
		return err
	}

	old, existed := w.core.idx.Insert(key, loc)
	if existed {
		w.accountShadowed(old)
	}
	w.core.liveBytes.Add(loc.Length)
	return nil
}

// writeLocked serializes rec, appends it to the active file, optionally
// fsyncs, and returns the BinLocation it now occupies. Caller must hold mu.
func (w *Writer) writeLocked(rec record.Record) (index.BinLocation, error) {
	buf, err := record.Encode(rec)
	if err != nil {
		return index.BinLocation{}, err
	}

	info, err := w.file.Stat()
	if err != nil {
		return index.BinLocation{}, fmt.Errorf("engine: stat active segment: %w", err)
	}
	offset := info.Size()

	if _, err := w.file.Write(buf); err != nil {
		return index.BinLocation{}, fmt.Errorf("engine: append: %w", err)
	}
	if w.core.cfg.SyncWrites {
		if err := w.file.Sync(); err != nil {
			return index.BinLocation{}, fmt.Errorf("engine: sync: %w", err)
		}
	}

	return index.BinLocation{Epoch: w.epoch, Offset: offset, Length: int64(len(buf))}, nil
}

func (w *Writer) accountShadowed(loc index.BinLocation) {
	w.deadBytes.Add(loc.Length)
	w.core.liveBytes.Add(-loc.Length)
}

// DeadBytes returns the current dead-byte counter, reset on every
// successful compaction.
func (w *Writer) DeadBytes() int64 { return w.deadBytes.Load() }

// MayCompact reports whether the writer's dead-byte counter has crossed
// either the absolute threshold or the dead/live ratio threshold.
func (w *Writer) MayCompact() bool {
	dead := w.deadBytes.Load()
	if dead > w.core.cfg.CompactThresholdBytes {
		return true
	}
	live := w.core.liveBytes.Load()
	ratio := float64(dead) / float64(live+1)
	return ratio > w.core.cfg.CompactRatio
}

// Flush ensures all preceding appends are durable.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	return nil
}

// setEpoch seals the current file and opens epoch as the new append
// target. Called exactly once per compaction, during the freeze step,
// while mu is held so no Set/Remove can observe a half-switched writer.
func (w *Writer) setEpoch(epoch uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := segment.OpenForAppend(w.core.cfg.Dir, epoch)
	if err != nil {
		return err
	}
	old := w.file
	w.file = f
	w.epoch = epoch
	return old.Close()
}

// resetDeadBytes zeroes the dead-byte counter. Called by the compactor
// once a compaction cycle completes.
func (w *Writer) resetDeadBytes() {
	w.deadBytes.Store(0)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
