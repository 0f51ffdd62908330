package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend names the pluggable storage variant a data directory was opened
// with. A store opened with one backend can never be reopened with the
// other: the marker file records which one was used first.
type Backend string

const (
	BackendKVS  Backend = "kvs"
	BackendSled Backend = "sled"
)

const markerFileName = "engine"

// CheckOrWriteMarker reads the marker file in dir, if any, and compares it
// to want. A missing marker is created with want and treated as a match.
// A mismatch is ErrEngineMismatch. Shared by Store.Open and by
// boltengine.Open so both backends enforce the same one-backend-per-data-
// directory rule.
func CheckOrWriteMarker(dir string, want Backend) error {
	path := filepath.Join(dir, markerFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("engine: read marker: %w", err)
		}
		if err := os.WriteFile(path, []byte(want), 0o644); err != nil {
			return fmt.Errorf("engine: write marker: %w", err)
		}
		return nil
	}

	got := Backend(strings.TrimSpace(string(data)))
	if got != want {
		return fmt.Errorf("engine: data directory was opened with %q, requested %q: %w", got, want, ErrEngineMismatch)
	}
	return nil
}
