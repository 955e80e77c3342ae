package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/volume"
)

// TextureObject is a block resident in device texture memory. Destroying
// it returns the underlying slot to the pool; the device storage itself
// survives for reuse.
type TextureObject struct {
	id    lod.NodeID
	size  int64
	state gpu.TextureState
	slot  *gpu.Slot
	pool  *gpu.TexturePool
}

// ID implements cache.Object.
func (o *TextureObject) ID() lod.NodeID { return o.id }

// SizeBytes implements cache.Object. The charge is the full slot size, not
// the block size: that is what the device actually holds.
func (o *TextureObject) SizeBytes() int64 { return o.size }

// Destroy implements cache.Object.
func (o *TextureObject) Destroy() { o.pool.Release(o.slot) }

// State returns the device handle and the normalized coordinate sub-range
// the block occupies inside its slot.
func (o *TextureObject) State() gpu.TextureState { return o.state }

// TextureCacheConfig configures a TextureCache.
type TextureCacheConfig struct {
	// BudgetBytes bounds resident device storage.
	BudgetBytes int64
	// MaxSlots caps pool allocations; <= 0 derives it from the budget.
	MaxSlots int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// OnUpload, if set, observes every texture upload.
	OnUpload func(d time.Duration, err error)
}

// TextureCache is the GPU tier. Its generator pulls the decoded payload
// from the data tier, takes a slot from the texture pool and uploads. Any
// reason the block cannot be produced right now (payload still decoding,
// decode queue full, pool exhausted) surfaces as cache.ErrNotReady so the
// renderer skips the block and retries next frame.
//
// Every method must be called from the thread owning the rendering
// context; the device and the pool are not thread safe.
type TextureCache struct {
	engine *cache.Cache[*TextureObject]
	data   *DataCache
	device gpu.Device
	pool   *gpu.TexturePool

	blockDims [3]uint32
	onUpload  func(d time.Duration, err error)
}

// NewTextureCache creates the GPU tier over the decode tier. Pool slots
// are sized to the dataset's block dimensions, so any block fits any slot.
func NewTextureCache(data *DataCache, device gpu.Device, cfg TextureCacheConfig) (*TextureCache, error) {
	info := data.Info()
	slotBytes := info.BlockBytes()
	if cfg.BudgetBytes < slotBytes {
		return nil, fmt.Errorf("stream: texture budget %d below slot size %d",
			cfg.BudgetBytes, slotBytes)
	}
	if cfg.MaxSlots <= 0 {
		// Slot count the budget can hold, with one slot of slack for the
		// in-flight upload while the cache is at capacity.
		cfg.MaxSlots = int(cfg.BudgetBytes/slotBytes) + 1
	}

	format := gpu.TextureFormat{
		Channels:       info.Channels,
		BytesPerSample: uint32(info.SampleType.BytesPerSample()),
	}
	pool := gpu.NewTexturePool(device, info.BlockSize, format, cfg.MaxSlots)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tc := &TextureCache{
		data:      data,
		device:    device,
		pool:      pool,
		blockDims: info.BlockSize,
		onUpload:  cfg.OnUpload,
	}
	tc.engine = cache.New[*TextureObject]("texture", cfg.BudgetBytes,
		cache.GeneratorFunc[*TextureObject](tc.generate),
		cache.WithLogger[*TextureObject](cfg.Logger),
	)
	return tc, nil
}

// Get returns a pinned reference to the device-resident block, promoting
// it from the data tier on miss. Errors: cache.ErrNotReady (transient),
// *cache.FailedError, cache.ErrClosed.
func (tc *TextureCache) Get(ctx context.Context, id lod.NodeID) (*cache.Ref[*TextureObject], error) {
	return tc.engine.Get(ctx, id)
}

// generate promotes one block into device memory. Runs on the rendering
// thread inside the engine's single-flight.
func (tc *TextureCache) generate(ctx context.Context, id lod.NodeID) (*TextureObject, error) {
	dataRef, err := tc.data.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer dataRef.Release()

	payload, err := dataRef.Object().Data()
	if err != nil {
		return nil, err
	}

	slot, err := tc.pool.Acquire()
	if errors.Is(err, gpu.ErrPoolExhausted) && tc.engine.EvictOne() {
		// Recycle an idle texture's slot; only pinned entries block us.
		slot, err = tc.pool.Acquire()
	}
	if err != nil {
		if errors.Is(err, gpu.ErrPoolExhausted) {
			return nil, fmt.Errorf("%w: %v", cache.ErrNotReady, err)
		}
		return nil, err
	}

	start := time.Now()
	err = tc.device.Upload(slot.Texture(), tc.blockDims, payload)
	if tc.onUpload != nil {
		tc.onUpload(time.Since(start), err)
	}
	if err != nil {
		tc.pool.Release(slot)
		return nil, err
	}

	return &TextureObject{
		id:    id,
		size:  tc.pool.SlotBytes(),
		state: slot.State(tc.blockDims),
		slot:  slot,
		pool:  tc.pool,
	}, nil
}

// Info returns the dataset metadata.
func (tc *TextureCache) Info() volume.VolumeInformation { return tc.data.Info() }

// Pool exposes the slot pool for diagnostics.
func (tc *TextureCache) Pool() *gpu.TexturePool { return tc.pool }

// Forget clears any recorded failure for id in this tier.
func (tc *TextureCache) Forget(id lod.NodeID) { tc.engine.Forget(id) }

// Contains reports whether id is device resident.
func (tc *TextureCache) Contains(id lod.NodeID) bool { return tc.engine.Contains(id) }

// Stats returns the tier's cache counters.
func (tc *TextureCache) Stats() cache.Stats { return tc.engine.Stats() }

// Close destroys every resident texture object, returning all slots to the
// pool, then destroys the pool's device storage.
func (tc *TextureCache) Close() error {
	err := tc.engine.Close()
	if perr := tc.pool.Close(); err == nil {
		err = perr
	}
	return err
}
