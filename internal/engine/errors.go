package engine

import (
	"errors"

	"github.com/kvstash/kvstash/internal/engine/record"
)

// Error kinds per the wire-level taxonomy: Io is any wrapped *os.PathError /
// net error reaching the caller unmodified, Corruption, KeyNotFound and
// EngineMismatch are these sentinels. ProtocolError is not declared here:
// it is server.ErrMalformedRequest.
var (
	// ErrKeyNotFound is returned by Remove when the key has no current
	// entry in the index. Get never returns it: absence is a value.
	ErrKeyNotFound = errors.New("engine: key not found")

	// ErrEngineMismatch is returned by Open when the on-disk marker names a
	// different backend than the one being opened with.
	ErrEngineMismatch = errors.New("engine: marker does not match requested backend")

	// ErrClosed is returned by any operation on a Store after Close.
	ErrClosed = errors.New("engine: store is closed")

	// ErrCorruption re-exports record.ErrCorruption so callers outside the
	// record package can errors.Is against one identifier.
	ErrCorruption = record.ErrCorruption
)
