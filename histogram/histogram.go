// Package histogram accumulates per-frame data histograms from partial
// contributions.
//
// Each rendered region contributes the histogram of the voxels it
// composited plus the fraction of the image it covered. Contributions for
// one frame can arrive out of order and interleaved with other frames;
// the aggregator merges them per frame and emits a frame's histogram once
// its coverage is complete. Transfer-function editors consume the result.
package histogram

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBinMismatch is returned when merging histograms of different shapes.
var ErrBinMismatch = errors.New("histogram: bin count mismatch")

// Histogram is a fixed-bin count histogram of sample values.
type Histogram struct {
	// Bins holds per-bin sample counts.
	Bins []uint64
	// Min and Max are the data range the bins span.
	Min, Max float64
}

// New creates an empty histogram with the given number of bins spanning
// [min, max].
func New(bins int, min, max float64) *Histogram {
	return &Histogram{Bins: make([]uint64, bins), Min: min, Max: max}
}

// Merge adds other's counts into h. The bin layouts must match.
func (h *Histogram) Merge(other *Histogram) error {
	if len(h.Bins) != len(other.Bins) {
		return fmt.Errorf("%w: %d vs %d", ErrBinMismatch, len(h.Bins), len(other.Bins))
	}
	for i, n := range other.Bins {
		h.Bins[i] += n
	}
	return nil
}

// Total returns the number of samples across all bins.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, c := range h.Bins {
		n += c
	}
	return n
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := &Histogram{Bins: make([]uint64, len(h.Bins)), Min: h.Min, Max: h.Max}
	copy(c.Bins, h.Bins)
	return c
}

// coverageEpsilon absorbs floating point error in area sums.
const coverageEpsilon = 1e-6

type pendingFrame struct {
	hist *Histogram
	area float64
}

// Aggregator merges partial histograms per frame.
//
// A frame completes when its accumulated relative area reaches 1. At most
// window frames are pending at once; when a new frame would exceed the
// window the oldest pending frame is dropped, so a contributor that never
// reports cannot pin memory. Contributions for frames at or before the
// last completed frame are stale and ignored.
//
// Safe for concurrent use; contributors report from wherever they render.
type Aggregator struct {
	bins   int
	window int

	mu            sync.Mutex
	pending       map[uint64]*pendingFrame
	lastCompleted uint64
}

// NewAggregator creates an aggregator for histograms of the given bin
// count. window is the number of simultaneously pending frames, typically
// the pipeline latency plus one; values below 1 are raised to 1.
func NewAggregator(bins, window int) *Aggregator {
	if window < 1 {
		window = 1
	}
	return &Aggregator{
		bins:    bins,
		window:  window,
		pending: make(map[uint64]*pendingFrame),
	}
}

// Add merges one contribution for frameID covering the given fraction of
// the image. When the contribution completes its frame, the merged
// histogram is returned with done true; the aggregator keeps no reference
// to it. Stale and dropped frames return (nil, false).
func (a *Aggregator) Add(frameID uint64, h *Histogram, area float64) (*Histogram, bool, error) {
	if len(h.Bins) != a.bins {
		return nil, false, fmt.Errorf("%w: %d vs %d", ErrBinMismatch, len(h.Bins), a.bins)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastCompleted > 0 && frameID <= a.lastCompleted {
		return nil, false, nil
	}

	p, ok := a.pending[frameID]
	if !ok {
		if len(a.pending) >= a.window {
			a.dropOldestLocked()
		}
		p = &pendingFrame{hist: New(a.bins, h.Min, h.Max)}
		a.pending[frameID] = p
	}

	if err := p.hist.Merge(h); err != nil {
		return nil, false, err
	}
	p.area += area
	if p.area+coverageEpsilon < 1 {
		return nil, false, nil
	}

	// Frame complete. Everything older can no longer finish in order.
	delete(a.pending, frameID)
	a.lastCompleted = frameID
	for id := range a.pending {
		if id <= frameID {
			delete(a.pending, id)
		}
	}
	return p.hist, true, nil
}

// Pending returns the number of incomplete frames, for diagnostics.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Aggregator) dropOldestLocked() {
	var oldest uint64
	first := true
	for id := range a.pending {
		if first || id < oldest {
			oldest = id
			first = false
		}
	}
	if !first {
		delete(a.pending, oldest)
	}
}
