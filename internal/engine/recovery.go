package engine

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/kvstash/kvstash/internal/engine/index"
	"github.com/kvstash/kvstash/internal/engine/record"
	"github.com/kvstash/kvstash/internal/engine/segment"
)

func bufReaderFor(f *os.File) *bufio.Reader { return bufio.NewReader(f) }

func isEOF(err error) bool { return errors.Is(err, io.EOF) }

func isCorruption(err error) bool { return errors.Is(err, record.ErrCorruption) }

func indexLocation(epoch uint64, offset, length int64) index.BinLocation {
	return index.BinLocation{Epoch: epoch, Offset: offset, Length: length}
}

// sweepOrphanedCompactionRemnants removes any segment file whose every
// record is shadowed by a strictly higher live epoch in the just-rebuilt
// index. This handles a crash mid-compaction: the freeze step had already
// advanced current_epoch past an orphaned e_compact.log before the
// process died, so the file exists on disk but nothing in the rebuilt
// index ever resolves into it.
func sweepOrphanedCompactionRemnants(c *core, epochs []uint64) error {
	if len(epochs) == 0 {
		return nil
	}

	referenced := make(map[uint64]bool)
	c.idx.ForEach(func(_ string, loc index.BinLocation) {
		referenced[loc.Epoch] = true
	})

	maxEpoch := epochs[len(epochs)-1]
	for _, epoch := range epochs {
		if epoch == maxEpoch {
			continue // the current append target is never orphaned
		}
		if !referenced[epoch] {
			if err := segment.Remove(c.cfg.Dir, epoch); err != nil {
				return err
			}
		}
	}
	return nil
}
