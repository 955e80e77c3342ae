package livre

import (
	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/volume"
)

// Sentinel errors of the streaming pipeline, re-exported so hosts embed
// only the root package.
var (
	// ErrNotReady marks a transient miss: the block is decoding, queued
	// or out of pool capacity. Skip it this frame and request it again.
	ErrNotReady = cache.ErrNotReady

	// ErrClosed is returned for operations on a closed streamer.
	ErrClosed = cache.ErrClosed

	// ErrBlockNotFound marks an identifier the dataset holds no payload
	// for.
	ErrBlockNotFound = volume.ErrBlockNotFound

	// ErrPoolExhausted marks a texture pool at its allocation ceiling.
	// Surfaces wrapped in ErrNotReady; exposed for diagnostics.
	ErrPoolExhausted = gpu.ErrPoolExhausted
)

// FailedError records a permanent load failure for one block. Cleared
// only by Streamer.Forget.
type FailedError = cache.FailedError
