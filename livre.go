// Package livre streams multi-resolution volume blocks through a bounded
// two-tier cache hierarchy into device texture memory for ray-cast
// rendering.
//
// Blocks flow from a volume.DataSource through the CPU decode tier into
// pooled device textures; a frame loop pins the visible working set each
// frame and orders it for compositing. Nothing ever blocks the rendering
// thread: blocks that are not resident yet are skipped and the image
// refines over successive frames.
//
// The Streamer facade wires the tiers together for hosts that do not need
// to assemble the pipeline themselves; the stream, render, cache, volume
// and gpu packages remain usable individually.
package livre

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/render"
	"github.com/JamesLinus/livre/stream"
	"github.com/JamesLinus/livre/volume"
)

const (
	// DefaultDataBudget bounds the decode tier when no budget is given.
	DefaultDataBudget = 256 << 20
	// DefaultTextureBudget bounds the texture tier when no budget is
	// given.
	DefaultTextureBudget = 128 << 20
)

// Streamer is the assembled streaming pipeline over one dataset.
//
// Construction and the non-frame accessors are safe from any goroutine.
// BeginFrame, RenderUntilComplete and Close belong to the thread owning
// the rendering context, as does everything touching the device.
type Streamer struct {
	source   volume.DataSource
	data     *stream.DataCache
	textures *stream.TextureCache
	loop     *render.Loop
	closed   atomic.Bool
}

// New assembles the pipeline over source and device. The streamer takes
// ownership of the source and closes it on Close.
func New(source volume.DataSource, device gpu.Device, optFns ...Option) (*Streamer, error) {
	opts := options{
		dataBudget:       DefaultDataBudget,
		textureBudget:    DefaultTextureBudget,
		selector:         render.LevelSelector{Level: 0},
		metricsCollector: NoopMetricsCollector{},
		logger:           NewLogger(nil),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	metrics := opts.metricsCollector

	data, err := stream.NewDataCache(source, stream.DataCacheConfig{
		BudgetBytes: opts.dataBudget,
		Workers:     opts.decodeWorkers,
		QueueDepth:  opts.decodeQueueDepth,
		Logger:      opts.logger.Logger,
		Controller:  opts.controller,
		OnDecode:    metrics.RecordDecode,
	})
	if err != nil {
		return nil, err
	}

	textures, err := stream.NewTextureCache(data, device, stream.TextureCacheConfig{
		BudgetBytes: opts.textureBudget,
		MaxSlots:    opts.texturePoolSlots,
		Logger:      opts.logger.Logger,
		OnUpload:    metrics.RecordUpload,
	})
	if err != nil {
		data.Close()
		return nil, err
	}

	loop, err := render.NewLoop(textures, render.LoopConfig{
		Selector: opts.selector,
		Order:    opts.blendOrder,
		Logger:   opts.logger.Logger,
		OnFrame:  metrics.RecordFrame,
	})
	if err != nil {
		textures.Close()
		data.Close()
		return nil, err
	}

	return &Streamer{
		source:   source,
		data:     data,
		textures: textures,
		loop:     loop,
	}, nil
}

// Info returns the dataset metadata.
func (s *Streamer) Info() volume.VolumeInformation { return s.data.Info() }

// Tree returns the dataset's LOD hierarchy geometry.
func (s *Streamer) Tree() *lod.Tree { return s.loop.Tree() }

// BeginFrame resolves and pins the working set for one frame. See
// render.Loop.BeginFrame; the returned frame must be ended exactly once.
func (s *Streamer) BeginFrame(ctx context.Context, view render.View) (*render.Frame, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.loop.BeginFrame(ctx, view)
}

// RenderUntilComplete drives frames for a static view until the working
// set is fully resident. See render.Loop.RenderUntilComplete.
func (s *Streamer) RenderUntilComplete(ctx context.Context, view render.View) (*render.Frame, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.loop.RenderUntilComplete(ctx, view)
}

// Prefetch schedules decodes for blocks a later frame is expected to
// need, without pinning anything. Blocks the decode queue refuses are
// simply not prefetched.
func (s *Streamer) Prefetch(ctx context.Context, ids []lod.NodeID) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for _, id := range ids {
		ref, err := s.data.Get(ctx, id)
		if err != nil {
			if errors.Is(err, cache.ErrNotReady) {
				continue
			}
			var failed *FailedError
			if errors.As(err, &failed) {
				continue
			}
			return err
		}
		ref.Release()
	}
	return nil
}

// Forget clears any recorded load failure for id in both tiers so the
// next request retries it, e.g. after the backing data was repaired.
func (s *Streamer) Forget(id lod.NodeID) {
	s.textures.Forget(id)
	s.data.Forget(id)
}

// DataStats returns the decode tier's cache counters.
func (s *Streamer) DataStats() cache.Stats { return s.data.Stats() }

// TextureStats returns the texture tier's cache counters.
func (s *Streamer) TextureStats() cache.Stats { return s.textures.Stats() }

// Close tears down the pipeline and closes the data source. Idempotent.
// Outstanding frames must be ended first.
func (s *Streamer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.textures.Close()
	if derr := s.data.Close(); err == nil {
		err = derr
	}
	if serr := s.source.Close(); err == nil {
		err = serr
	}
	return err
}
