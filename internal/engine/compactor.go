package engine

import (
	"fmt"

	"github.com/kvstash/kvstash/internal/engine/index"
	"github.com/kvstash/kvstash/internal/engine/record"
	"github.com/kvstash/kvstash/internal/engine/segment"
)

// Compactor rewrites live records into a fresh epoch and retires the
// epochs they used to live in. It never holds the writer's lock during
// I/O: the lock is only taken for the instant the active append target is
// switched (the freeze step).
type Compactor struct {
	core   *core
	writer *Writer
	reader *Reader

	// OnCompacted, if set, is called after a successful compaction with
	// the total length of the records the cycle moved into the compaction
	// epoch. This is not the number of bytes freed on disk. Used to feed
	// metrics.
	OnCompacted func(reclaimedBytes int64)
}

func newCompactor(c *core, w *Writer) *Compactor {
	return &Compactor{core: c, writer: w, reader: newReader(c)}
}

// Run executes one compaction cycle: freeze, rewrite, republish, advance
// tail, retire. It is safe to call concurrently with Set/Remove and with
// Get on any Reader; it is not safe to call concurrently with itself (the
// caller, typically Store, must serialize compaction attempts).
func (c *Compactor) Run() error {
	eCompact, eNext, err := c.freeze()
	if err != nil {
		return fmt.Errorf("engine: compaction freeze: %w", err)
	}

	reclaimed, err := c.rewriteAndRepublish(eCompact)
	if err != nil {
		// Leave the index and registers untouched; eCompact.log may be a
		// partial file on disk, unreferenced by anything, to be swept by
		// a later compaction's retire step or left harmless.
		return fmt.Errorf("engine: compaction rewrite into epoch %d: %w", eCompact, err)
	}

	c.core.tailEpoch.Store(eCompact)
	c.writer.resetDeadBytes()

	if err := c.retire(eCompact); err != nil {
		return fmt.Errorf("engine: compaction retire below epoch %d: %w", eCompact, err)
	}

	_ = eNext
	if c.OnCompacted != nil {
		c.OnCompacted(reclaimed)
	}
	return nil
}

// freeze allocates a pair of epochs and switches the writer's append
// target to the upper one, sealing whatever epoch was current before.
func (c *Compactor) freeze() (eCompact, eNext uint64, err error) {
	newCurrent := c.core.currentEpoch.Add(2)
	eCompact = newCurrent - 1
	eNext = newCurrent

	if err := c.writer.setEpoch(eNext); err != nil {
		return 0, 0, err
	}
	return eCompact, eNext, nil
}

// rewriteAndRepublish copies every live key's record into eCompact.log and
// CAS-publishes the new location, skipping (not resurrecting) any key
// that was overwritten into eNext while the rewrite was in flight.
func (c *Compactor) rewriteAndRepublish(eCompact uint64) (int64, error) {
	compactFile, err := segment.OpenForAppend(c.core.cfg.Dir, eCompact)
	if err != nil {
		return 0, err
	}
	defer compactFile.Close()

	var (
		writeOffset int64
		reclaimed   int64
	)

	var rewriteErr error
	c.core.idx.ForEach(func(key string, oldLoc index.BinLocation) {
		if rewriteErr != nil {
			return
		}

		rec, err := c.reader.readAt(oldLoc)
		if err != nil {
			rewriteErr = fmt.Errorf("read live record for %q at epoch %d: %w", key, oldLoc.Epoch, err)
			return
		}

		buf, err := record.Encode(rec)
		if err != nil {
			rewriteErr = err
			return
		}

		if _, err := compactFile.Write(buf); err != nil {
			rewriteErr = fmt.Errorf("write into epoch %d: %w", eCompact, err)
			return
		}

		newLoc := index.BinLocation{Epoch: eCompact, Offset: writeOffset, Length: int64(len(buf))}
		writeOffset += int64(len(buf))

		if c.core.idx.CompareAndSwap(key, oldLoc, newLoc) {
			reclaimed += oldLoc.Length
		}
		// A failed CAS means the key was overwritten (to eNext) after the
		// freeze snapshot was taken; the newer write already owns the
		// index entry and the bytes just written into eCompact for the
		// stale value become dead weight reclaimed by the next cycle.
	})

	if rewriteErr != nil {
		return 0, rewriteErr
	}
	return reclaimed, nil
}

// retire unlinks every segment file below eCompact. By the tail_epoch
// invariant, once tail_epoch is advanced to eCompact no index entry can
// reference an epoch below it, so every such file is safe to remove
// regardless of whether this cycle happened to touch its keys.
func (c *Compactor) retire(eCompact uint64) error {
	epochs, err := segment.Discover(c.core.cfg.Dir)
	if err != nil {
		return err
	}

	for _, epoch := range epochs {
		if epoch >= eCompact {
			continue
		}

		lock := c.core.locks.lockFor(epoch)
		lock.Lock()
		err := segment.Remove(c.core.cfg.Dir, epoch)
		lock.Unlock()
		if err != nil {
			return err
		}
		c.core.locks.drop(epoch)
	}
	return nil
}
