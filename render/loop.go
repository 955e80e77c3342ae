// Package render drives the streaming pipeline from the rendering thread:
// each frame it asks the selector which blocks the view needs, pins what
// is resident in the texture tier, orders the resulting bricks for
// compositing and reports what had to be skipped.
//
// The loop never blocks on a missing block. Blocks that are still
// decoding, still queued or out of pool capacity are skipped this frame
// and requested again the next; the image refines over successive frames
// as the working set becomes resident.
//
// Like the texture tier it drives, a Loop is owned by the thread that owns
// the rendering context.
package render

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/stream"
)

// RenderBrick is one device-resident block ready for compositing.
type RenderBrick struct {
	ID       lod.NodeID
	WorldBox lod.Box
	Texture  gpu.TextureState
	Distance float32
}

// FrameStats summarizes one frame of the loop.
type FrameStats struct {
	// FrameID counts frames since the loop was created, starting at 1.
	FrameID uint64
	// Requested is how many blocks the selector asked for.
	Requested int
	// Rendered is how many of those were resident and pinned.
	Rendered int
	// Skipped is how many were not ready this frame.
	Skipped int
	// Failed is how many carry a recorded load failure.
	Failed int
	// Appeared and Vanished count blocks that entered or left the
	// rendered set relative to the previous frame.
	Appeared int
	Vanished int
}

// Complete reports whether every requested block was rendered, meaning the
// image is at full fidelity for this view.
func (s FrameStats) Complete() bool {
	return s.Rendered == s.Requested
}

// LoopConfig configures a frame loop.
type LoopConfig struct {
	// Selector decides the per-frame working set. Required.
	Selector Selector
	// Order is the compositing order of Frame.Bricks.
	Order BlendOrder
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// OnFrame, if set, observes every completed frame.
	OnFrame func(stats FrameStats, d time.Duration)
}

// Loop turns per-frame visibility into pinned, ordered bricks.
type Loop struct {
	textures *stream.TextureCache
	tree     *lod.Tree
	selector Selector
	order    BlendOrder
	logger   *slog.Logger
	onFrame  func(stats FrameStats, d time.Duration)

	// rendered set of the previous frame, for appear/vanish accounting
	prev    *roaring64.Bitmap
	frameID uint64
}

// NewLoop creates a frame loop over the texture tier.
func NewLoop(textures *stream.TextureCache, cfg LoopConfig) (*Loop, error) {
	if cfg.Selector == nil {
		return nil, errors.New("render: selector is required")
	}
	tree, err := textures.Info().Tree()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		textures: textures,
		tree:     tree,
		selector: cfg.Selector,
		order:    cfg.Order,
		logger:   cfg.Logger,
		onFrame:  cfg.OnFrame,
		prev:     roaring64.New(),
	}, nil
}

// Tree returns the dataset hierarchy the loop renders.
func (l *Loop) Tree() *lod.Tree { return l.tree }

// Frame is the pinned working set of one frame. Every brick's texture
// stays resident until End is called; a frame must be ended before the
// next one begins.
type Frame struct {
	// Bricks are the resident blocks in blend order.
	Bricks []*RenderBrick
	// Skipped lists the requested blocks that were not ready. The caller
	// renders without them; they stay requested and typically arrive
	// within a few frames.
	Skipped []lod.NodeID
	// Stats summarizes the frame.
	Stats FrameStats

	refs  []*cache.Ref[*stream.TextureObject]
	ended bool
}

// End releases every pin the frame holds. Idempotent. The bricks' texture
// states must not be used past End.
func (f *Frame) End() {
	if f.ended {
		return
	}
	f.ended = true
	for _, ref := range f.refs {
		ref.Release()
	}
	f.refs = nil
}

// BeginFrame resolves the working set for view: it requests every selected
// block from the texture tier, pins those that are resident and orders
// them for compositing. Missing blocks are skipped, never waited for.
//
// The returned frame must be ended exactly once, after the host has issued
// its draw calls.
func (l *Loop) BeginFrame(ctx context.Context, view View) (*Frame, error) {
	start := time.Now()
	l.frameID++

	ids := l.selector.Select(l.tree, view)
	frame := &Frame{Stats: FrameStats{FrameID: l.frameID, Requested: len(ids)}}
	current := roaring64.New()

	// Resolve requests in blend order, not selector order: under a full
	// decode queue the blocks that matter most to the blend claim the
	// queue slots, and the pinned bricks come out already ordered.
	q := &brickQueue{Order: l.order == BackToFront, Items: make([]*RenderBrick, 0, len(ids))}
	for _, id := range ids {
		box := l.tree.WorldBox(id)
		heap.Push(q, &RenderBrick{
			ID:       id,
			WorldBox: box,
			Distance: distance(box, view.Eye),
		})
	}

	frame.Bricks = make([]*RenderBrick, 0, len(ids))
	for q.Len() > 0 {
		brick := heap.Pop(q).(*RenderBrick)
		ref, err := l.textures.Get(ctx, brick.ID)
		if err != nil {
			if errors.Is(err, cache.ErrClosed) {
				frame.End()
				return nil, err
			}
			var failed *cache.FailedError
			if errors.As(err, &failed) {
				frame.Stats.Failed++
			}
			frame.Stats.Skipped++
			frame.Skipped = append(frame.Skipped, brick.ID)
			continue
		}

		brick.Texture = ref.Object().State()
		frame.Bricks = append(frame.Bricks, brick)
		frame.refs = append(frame.refs, ref)
		current.Add(uint64(brick.ID))
	}
	frame.Stats.Rendered = len(frame.Bricks)

	appeared := roaring64.AndNot(current, l.prev)
	vanished := roaring64.AndNot(l.prev, current)
	frame.Stats.Appeared = int(appeared.GetCardinality())
	frame.Stats.Vanished = int(vanished.GetCardinality())
	l.prev = current

	if frame.Stats.Skipped > 0 {
		l.logger.Debug("incomplete frame",
			"frame", frame.Stats.FrameID,
			"requested", frame.Stats.Requested,
			"rendered", frame.Stats.Rendered,
			"skipped", frame.Stats.Skipped,
		)
	}
	if l.onFrame != nil {
		l.onFrame(frame.Stats, time.Since(start))
	}
	return frame, nil
}

// RenderUntilComplete runs frames for a static view until every requested
// block is resident or the context expires, ending each intermediate frame
// itself. It returns the first complete frame, still pinned; the caller
// ends it. Convenience for offline rendering and tests; interactive hosts
// drive BeginFrame directly.
func (l *Loop) RenderUntilComplete(ctx context.Context, view View) (*Frame, error) {
	for {
		frame, err := l.BeginFrame(ctx, view)
		if err != nil {
			return nil, err
		}
		if frame.Stats.Complete() {
			return frame, nil
		}
		if frame.Stats.Failed > 0 {
			// Recorded failures never resolve on their own.
			frame.End()
			return nil, fmt.Errorf("render: %d unloadable blocks in working set", frame.Stats.Failed)
		}
		frame.End()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
