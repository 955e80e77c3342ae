// Package stream implements the two cache tiers of the block streaming
// pipeline: DataCache decodes blocks from a DataSource into host memory on
// a worker pool, and TextureCache promotes decoded blocks into pooled
// device textures on the rendering thread.
//
// Both tiers are bounded cache.Cache instances; the tiers differ only in
// what their generators produce and who may call them. DataCache is safe
// for concurrent use. TextureCache is owned by the rendering thread, like
// everything that touches the device.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/resource"
	"github.com/JamesLinus/livre/volume"
)

// DataObject is a decoded voxel block resident in host memory. Its payload
// is produced asynchronously; until the decode worker publishes it, Data
// reports cache.ErrNotReady.
type DataObject struct {
	id   lod.NodeID
	size int64
	slot cache.ResultSlot[[]byte]
}

// ID implements cache.Object.
func (o *DataObject) ID() lod.NodeID { return o.id }

// SizeBytes implements cache.Object. Every block of a dataset decodes to
// the same size, known from the metadata before the payload exists, which
// is what lets the cache charge the budget at admission time.
func (o *DataObject) SizeBytes() int64 { return o.size }

// Destroy implements cache.Object. Host memory is garbage collected; an
// in-flight decode finishes into the orphaned slot and is dropped with it.
func (o *DataObject) Destroy() {}

// Data returns the decoded payload, cache.ErrNotReady while the decode is
// still in flight, or the decode error.
func (o *DataObject) Data() ([]byte, error) {
	data, err, state := o.slot.Poll()
	switch state {
	case cache.SlotReady:
		return data, nil
	case cache.SlotFailed:
		return nil, err
	default:
		return nil, cache.ErrNotReady
	}
}

// DataCacheConfig configures a DataCache.
type DataCacheConfig struct {
	// BudgetBytes bounds resident decoded payloads.
	BudgetBytes int64
	// Workers is the number of decode goroutines. Defaults to GOMAXPROCS.
	Workers int
	// QueueDepth bounds pending decodes. Defaults to 2*Workers. A full
	// queue makes Get report cache.ErrNotReady rather than queue without
	// bound.
	QueueDepth int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Controller optionally tracks resident bytes and bounds decode
	// concurrency across the process.
	Controller *resource.Controller
	// OnDecode, if set, observes every completed decode.
	OnDecode func(d time.Duration, err error)
}

// DataCache is the CPU decode tier. Get admits a block immediately (its
// size is known from the metadata) and schedules the decode on the worker
// pool; the payload becomes available through DataObject.Data once the
// worker publishes it.
type DataCache struct {
	engine  *cache.Cache[*DataObject]
	source  volume.DataSource
	workers *workerPool
	rc      *resource.Controller

	onDecode func(d time.Duration, err error)

	workCtx    context.Context
	cancelWork context.CancelFunc
}

// NewDataCache creates the decode tier over source. The source is owned by
// the caller and not closed by the cache.
func NewDataCache(source volume.DataSource, cfg DataCacheConfig) (*DataCache, error) {
	info := source.Info()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if cfg.BudgetBytes < info.BlockBytes() {
		return nil, fmt.Errorf("stream: data budget %d below block size %d",
			cfg.BudgetBytes, info.BlockBytes())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dc := &DataCache{
		source:   source,
		workers:  newWorkerPool(cfg.Workers, cfg.QueueDepth),
		rc:       cfg.Controller,
		onDecode: cfg.OnDecode,
	}
	dc.workCtx, dc.cancelWork = context.WithCancel(context.Background())
	dc.engine = cache.New[*DataObject]("data", cfg.BudgetBytes,
		cache.GeneratorFunc[*DataObject](dc.generate),
		cache.WithLogger[*DataObject](cfg.Logger),
		cache.WithController[*DataObject](cfg.Controller),
	)
	return dc, nil
}

// Info returns the dataset metadata.
func (dc *DataCache) Info() volume.VolumeInformation { return dc.source.Info() }

// Get returns a pinned reference to the block, scheduling its decode on
// first request. The reference may hold a still-pending object; callers
// poll DataObject.Data. Errors: cache.ErrNotReady when the decode queue is
// full, *cache.FailedError for a recorded decode failure, cache.ErrClosed.
func (dc *DataCache) Get(ctx context.Context, id lod.NodeID) (*cache.Ref[*DataObject], error) {
	ref, err := dc.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// A decode that failed after admission leaves the entry resident but
	// unusable. Fold it into the failure record so later Gets fail fast.
	if _, derr := ref.Object().Data(); derr != nil && !errors.Is(derr, cache.ErrNotReady) {
		ref.Release()
		dc.engine.Discard(id, derr)
		return nil, &cache.FailedError{ID: id, Cause: derr}
	}
	return ref, nil
}

// generate admits the block and schedules its decode. Runs under the
// engine's single-flight, so each block is scheduled at most once.
func (dc *DataCache) generate(_ context.Context, id lod.NodeID) (*DataObject, error) {
	obj := &DataObject{id: id, size: dc.source.Info().BlockBytes()}

	ok := dc.workers.TrySubmit(func() {
		start := time.Now()
		data, err := dc.loadBlock(id)
		if dc.onDecode != nil {
			dc.onDecode(time.Since(start), err)
		}
		if err != nil {
			obj.slot.Fail(err)
			return
		}
		obj.slot.Ready(data)
	})
	if !ok {
		return nil, fmt.Errorf("%w: decode queue full", cache.ErrNotReady)
	}
	return obj, nil
}

func (dc *DataCache) loadBlock(id lod.NodeID) ([]byte, error) {
	if err := dc.rc.AcquireFetcher(dc.workCtx); err != nil {
		return nil, err
	}
	defer dc.rc.ReleaseFetcher()

	data, err := dc.source.LoadBlock(dc.workCtx, id)
	if err != nil {
		return nil, err
	}
	if want := dc.source.Info().BlockBytes(); int64(len(data)) != want {
		return nil, fmt.Errorf("stream: decoded %d bytes for %s, want %d",
			len(data), id, want)
	}
	return data, nil
}

// Forget clears any recorded failure for id so the next Get retries it.
func (dc *DataCache) Forget(id lod.NodeID) { dc.engine.Forget(id) }

// Contains reports whether id is resident, possibly still decoding.
func (dc *DataCache) Contains(id lod.NodeID) bool { return dc.engine.Contains(id) }

// Stats returns the tier's cache counters.
func (dc *DataCache) Stats() cache.Stats { return dc.engine.Stats() }

// Close tears down the tier: pending decodes are cancelled, the worker
// pool drains, resident payloads are dropped. The source stays open.
func (dc *DataCache) Close() error {
	dc.cancelWork()
	dc.workers.Close()
	return dc.engine.Close()
}
