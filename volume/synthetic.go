package volume

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JamesLinus/livre/lod"
)

// SyntheticOption configures a SyntheticSource.
type SyntheticOption func(*SyntheticSource)

// WithLatency adds an artificial per-block decode delay, emulating backend
// I/O for pipeline tests.
func WithLatency(d time.Duration) SyntheticOption {
	return func(s *SyntheticSource) { s.latency = d }
}

// WithFailure makes loading the given block fail, emulating a corrupt or
// missing region of a dataset.
func WithFailure(id lod.NodeID) SyntheticOption {
	return func(s *SyntheticSource) { s.failing[id] = struct{}{} }
}

// SyntheticSource procedurally generates block samples. The value of every
// sample is a deterministic function of the block identifier and the sample
// index, so any consumer can verify a round trip without holding the
// original buffer.
type SyntheticSource struct {
	info    VolumeInformation
	latency time.Duration
	failing map[lod.NodeID]struct{}

	mu    sync.Mutex
	loads int
}

// NewSyntheticSource creates a procedural data source.
func NewSyntheticSource(info VolumeInformation, opts ...SyntheticOption) (*SyntheticSource, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	s := &SyntheticSource{info: info, failing: make(map[lod.NodeID]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Info returns the dataset metadata.
func (s *SyntheticSource) Info() VolumeInformation { return s.info }

// Loads returns how many blocks were generated, for tests.
func (s *SyntheticSource) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// LoadBlock generates the samples for one block.
func (s *SyntheticSource) LoadBlock(ctx context.Context, id lod.NodeID) ([]byte, error) {
	if _, fail := s.failing[id]; fail {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	return SyntheticSamples(s.info, id), nil
}

// Close implements DataSource.
func (s *SyntheticSource) Close() error { return nil }

// SyntheticSamples returns the deterministic sample buffer of one block.
// Exposed so tests can assert texture readbacks against the expected
// content without going through the source.
func SyntheticSamples(info VolumeInformation, id lod.NodeID) []byte {
	samples := make([]byte, info.BlockBytes())
	seed := uint64(id)*0x9E3779B97F4A7C15 + 1
	for i := range samples {
		samples[i] = byte(seed>>16) + byte(i)
	}
	return samples
}
