package engine

import (
	"sync/atomic"

	"github.com/kvstash/kvstash/internal/engine/index"
)

// Config tunes the native bitcask-style engine. Zero value is not usable;
// use DefaultConfig as a base.
type Config struct {
	// Dir is the data directory holding "<epoch>.log" segment files and
	// the "engine" marker file.
	Dir string

	// SyncWrites, when true, fsyncs the active segment after every append.
	// When false, durability is left to the OS page cache flush schedule.
	SyncWrites bool

	// CompactThresholdBytes triggers may_compact once the writer's dead
	// byte counter exceeds it.
	CompactThresholdBytes int64

	// CompactRatio triggers may_compact once dead/(live+1) exceeds it,
	// independent of the absolute threshold. A ratio trigger catches small
	// databases where the absolute threshold would rarely fire.
	CompactRatio float64
}

// DefaultConfig matches the defaults named in the design: a 1 MiB dead-byte
// threshold and a 0.5 dead/live ratio.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                   dir,
		SyncWrites:            false,
		CompactThresholdBytes: 1 << 20,
		CompactRatio:          0.5,
	}
}

// core is the shared state a Writer and every Reader facade operate over.
// It is held by reference; cloning a Reader or Writer facade never copies
// core, only the thin facade wrapping it.
type core struct {
	cfg   Config
	idx   *index.Index
	locks *epochLockTable

	currentEpoch atomic.Uint64
	tailEpoch    atomic.Uint64

	// liveBytes is an approximate running total of bytes reachable through
	// the index, used only to compute the dead/live compaction ratio.
	liveBytes atomic.Int64

	// compacting guards against two goroutines running a compaction cycle
	// at once; Compactor.Run is not safe to call concurrently with itself.
	compacting atomic.Bool
}

func newCore(cfg Config) *core {
	return &core{
		cfg:   cfg,
		idx:   index.New(),
		locks: newEpochLockTable(),
	}
}

func (c *core) CurrentEpoch() uint64 { return c.currentEpoch.Load() }
func (c *core) TailEpoch() uint64    { return c.tailEpoch.Load() }
