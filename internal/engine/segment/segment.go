// Package segment enumerates and names the append-only log files that make
// up a store's on-disk state, one per epoch.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const extension = ".log"

var namePattern = regexp.MustCompile(`^(\d+)\.log$`)

// Path returns the on-disk path of the segment file for epoch under dir.
func Path(dir string, epoch uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", epoch, extension))
}

// ParseEpoch extracts the epoch number from a segment file's base name. ok
// is false if name does not match the "<epoch>.log" pattern.
func ParseEpoch(name string) (uint64, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	epoch, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// Discover lists the epochs present in dir, ascending, by scanning for
// "<epoch>.log" files. It does not open anything.
func Discover(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: read dir %s: %w", dir, err)
	}

	var epochs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if epoch, ok := ParseEpoch(e.Name()); ok {
			epochs = append(epochs, epoch)
		}
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs, nil
}

// OpenForAppend opens (creating if needed) the segment file for epoch with
// O_APPEND so concurrent writes from a single writer goroutine always land
// at the current end of file.
func OpenForAppend(dir string, epoch uint64) (*os.File, error) {
	path := Path(dir, epoch)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s for append: %w", path, err)
	}
	return f, nil
}

// OpenForRead opens the segment file for epoch read-only.
func OpenForRead(dir string, epoch uint64) (*os.File, error) {
	path := Path(dir, epoch)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s for read: %w", path, err)
	}
	return f, nil
}

// Remove unlinks the segment file for epoch. A missing file is not an
// error: it may already have been removed by a concurrent retirement, or
// never existed if epoch was allocated but never written to.
func Remove(dir string, epoch uint64) error {
	err := os.Remove(Path(dir, epoch))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("segment: remove epoch %d: %w", epoch, err)
	}
	return nil
}

// Size returns the current size in bytes of the segment file for epoch, or
// 0 if it does not exist yet.
func Size(dir string, epoch uint64) (int64, error) {
	info, err := os.Stat(Path(dir, epoch))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("segment: stat epoch %d: %w", epoch, err)
	}
	return info.Size(), nil
}
