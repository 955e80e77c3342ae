package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partial(bins []uint64) *Histogram {
	return &Histogram{Bins: bins, Min: 0, Max: 255}
}

func TestMerge(t *testing.T) {
	h := New(4, 0, 255)
	require.NoError(t, h.Merge(partial([]uint64{1, 2, 3, 4})))
	require.NoError(t, h.Merge(partial([]uint64{1, 0, 0, 1})))
	assert.Equal(t, []uint64{2, 2, 3, 5}, h.Bins)
	assert.Equal(t, uint64(12), h.Total())

	assert.ErrorIs(t, h.Merge(New(8, 0, 255)), ErrBinMismatch)
}

func TestAggregatorCompletesOnFullCoverage(t *testing.T) {
	agg := NewAggregator(2, 2)

	_, done, err := agg.Add(1, partial([]uint64{1, 0}), 0.5)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, agg.Pending())

	merged, done, err := agg.Add(1, partial([]uint64{0, 2}), 0.5)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []uint64{1, 2}, merged.Bins)
	assert.Equal(t, 0, agg.Pending())
}

func TestAggregatorInterleavedFrames(t *testing.T) {
	agg := NewAggregator(1, 3)

	// Contributions for frames 1..3 interleave; frame 2 completes first.
	_, done, err := agg.Add(1, partial([]uint64{1}), 0.5)
	require.NoError(t, err)
	assert.False(t, done)
	_, done, err = agg.Add(3, partial([]uint64{4}), 0.5)
	require.NoError(t, err)
	assert.False(t, done)
	_, done, err = agg.Add(2, partial([]uint64{2}), 0.5)
	require.NoError(t, err)
	assert.False(t, done)

	merged, done, err := agg.Add(2, partial([]uint64{2}), 0.5)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, uint64(4), merged.Total())

	// Frame 1 is now stale and can never complete; frame 3 still can.
	_, done, err = agg.Add(1, partial([]uint64{1}), 0.5)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, agg.Pending(), "only frame 3 remains pending")

	merged, done, err = agg.Add(3, partial([]uint64{4}), 0.5)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, uint64(8), merged.Total())
}

func TestAggregatorWindowDropsOldest(t *testing.T) {
	agg := NewAggregator(1, 2)

	for frame := uint64(1); frame <= 3; frame++ {
		_, done, err := agg.Add(frame, partial([]uint64{1}), 0.25)
		require.NoError(t, err)
		assert.False(t, done)
	}
	assert.Equal(t, 2, agg.Pending(), "window of two evicts frame 1")

	// Frame 1's late contribution reopens it only by evicting another
	// pending frame; it never completes with partial coverage.
	_, done, err := agg.Add(1, partial([]uint64{1}), 0.25)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, agg.Pending())
}

func TestAggregatorBinMismatch(t *testing.T) {
	agg := NewAggregator(4, 1)
	_, _, err := agg.Add(1, partial([]uint64{1}), 1)
	assert.ErrorIs(t, err, ErrBinMismatch)
}
