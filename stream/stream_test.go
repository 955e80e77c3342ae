package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/livre/cache"
	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/volume"
)

var testInfo = volume.VolumeInformation{
	RootGrid:   [3]uint32{2, 2, 2},
	Levels:     3,
	WorldSize:  [3]float32{1, 1, 1},
	BlockSize:  [3]uint32{4, 4, 4},
	Channels:   1,
	SampleType: volume.SampleUInt8,
}

func testNode(t *testing.T, x, y, z uint32) lod.NodeID {
	t.Helper()
	id := lod.NewNodeID(0, x, y, z)
	require.True(t, id.IsValid())
	return id
}

// waitData polls Get until the decode completes, releasing the pending
// reference between polls the way a frame loop would.
func waitData(t *testing.T, dc *DataCache, id lod.NodeID) *cache.Ref[*DataObject] {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ref, err := dc.Get(context.Background(), id)
		require.NoError(t, err)
		if _, derr := ref.Object().Data(); derr == nil {
			return ref
		}
		ref.Release()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("decode of %s did not complete", id)
	return nil
}

func newTestDataCache(t *testing.T, source volume.DataSource, cfg DataCacheConfig) *DataCache {
	t.Helper()
	if cfg.BudgetBytes == 0 {
		cfg.BudgetBytes = 1 << 20
	}
	dc, err := NewDataCache(source, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { dc.Close() })
	return dc
}

func TestDataCacheDecodesAsync(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo,
		volume.WithLatency(20*time.Millisecond))
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 2})

	id := testNode(t, 0, 0, 0)

	// First request admits the block but the payload is still in flight.
	ref, err := dc.Get(context.Background(), id)
	require.NoError(t, err)
	_, derr := ref.Object().Data()
	assert.ErrorIs(t, derr, cache.ErrNotReady)
	ref.Release()

	ref = waitData(t, dc, id)
	defer ref.Release()

	data, derr := ref.Object().Data()
	require.NoError(t, derr)
	assert.Equal(t, volume.SyntheticSamples(testInfo, id), data)
	assert.Equal(t, 1, source.Loads(), "single decode despite repeated polls")
}

func TestDataCacheQueueFull(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo,
		volume.WithLatency(50*time.Millisecond))
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1, QueueDepth: 1})

	// One block decoding, one queued; the next admission is refused.
	var full bool
	for i := uint32(0); i < 8 && !full; i++ {
		ref, err := dc.Get(context.Background(), testNode(t, i%2, (i/2)%2, i/4))
		if err != nil {
			assert.ErrorIs(t, err, cache.ErrNotReady)
			full = true
			continue
		}
		ref.Release()
	}
	assert.True(t, full, "saturated queue must refuse admission")
}

func TestDataCacheFailureRecorded(t *testing.T) {
	bad := lod.NewNodeID(0, 1, 1, 1)
	source, err := volume.NewSyntheticSource(testInfo, volume.WithFailure(bad))
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1})

	// Poll until the worker publishes the failure.
	deadline := time.Now().Add(5 * time.Second)
	var got error
	for time.Now().Before(deadline) {
		ref, err := dc.Get(context.Background(), bad)
		if err != nil {
			got = err
			break
		}
		_, derr := ref.Object().Data()
		ref.Release()
		if derr != nil && derr != cache.ErrNotReady {
			continue // next Get folds it into the failure record
		}
		time.Sleep(time.Millisecond)
	}
	require.Error(t, got)
	var failed *cache.FailedError
	require.ErrorAs(t, got, &failed)
	assert.Equal(t, bad, failed.ID)
	assert.ErrorIs(t, got, volume.ErrBlockNotFound)

	// The record is sticky until forgotten; Forget re-admits the block
	// and schedules a fresh decode attempt.
	_, err = dc.Get(context.Background(), bad)
	assert.ErrorAs(t, err, &failed)
	dc.Forget(bad)
	ref, err := dc.Get(context.Background(), bad)
	require.NoError(t, err)
	ref.Release()
}

func newTestTextureCache(t *testing.T, dc *DataCache, cfg TextureCacheConfig) (*TextureCache, *gpu.SoftwareDevice) {
	t.Helper()
	device := gpu.NewSoftwareDevice()
	if cfg.BudgetBytes == 0 {
		cfg.BudgetBytes = 4 * testInfo.BlockBytes()
	}
	tc, err := NewTextureCache(dc, device, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tc.Close() })
	return tc, device
}

func TestTextureCachePromotesAfterDecode(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo,
		volume.WithLatency(10*time.Millisecond))
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1})
	tc, device := newTestTextureCache(t, dc, TextureCacheConfig{})

	id := testNode(t, 0, 0, 0)
	assert.Equal(t, testInfo, tc.Info(), "texture tier republishes the dataset metadata")

	// Not ready while the decode is in flight; nothing is recorded.
	_, err = tc.Get(context.Background(), id)
	assert.ErrorIs(t, err, cache.ErrNotReady)

	var ref *cache.Ref[*TextureObject]
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ref, err = tc.Get(context.Background(), id)
		if err == nil {
			break
		}
		require.ErrorIs(t, err, cache.ErrNotReady)
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, err)
	defer ref.Release()

	state := ref.Object().State()
	require.True(t, state.Valid())
	assert.Equal(t, testInfo.BlockSize, state.VoxelDims)
	assert.Equal(t, [3]float32{1, 1, 1}, state.CoordsMax, "block fills its slot")

	data, dims, err := device.ReadTexture(state.Texture)
	require.NoError(t, err)
	assert.Equal(t, testInfo.BlockSize, dims)
	assert.Equal(t, volume.SyntheticSamples(testInfo, id), data)
}

func TestTextureCacheEvictionReusesSlots(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo)
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1})
	tc, device := newTestTextureCache(t, dc, TextureCacheConfig{
		BudgetBytes: 2 * testInfo.BlockBytes(),
	})

	promote := func(id lod.NodeID) {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			ref, err := tc.Get(context.Background(), id)
			if err == nil {
				ref.Release()
				return
			}
			require.ErrorIs(t, err, cache.ErrNotReady)
			time.Sleep(time.Millisecond)
		}
		t.Fatalf("promotion of %s did not complete", id)
	}

	ids := []lod.NodeID{
		testNode(t, 0, 0, 0),
		testNode(t, 1, 0, 0),
		testNode(t, 0, 1, 0),
		testNode(t, 1, 1, 0),
	}
	for _, id := range ids {
		promote(id)
	}

	// Budget holds two slots plus the admission slack; churn through four
	// blocks without allocating per block.
	assert.LessOrEqual(t, device.Creates, 3, "slots are reused, not reallocated")
	assert.GreaterOrEqual(t, tc.Stats().Evictions, int64(1))
	assert.LessOrEqual(t, tc.Stats().Entries, 3)
}

func TestTextureCachePoolExhaustedIsTransient(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo)
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1})
	tc, _ := newTestTextureCache(t, dc, TextureCacheConfig{
		BudgetBytes: 4 * testInfo.BlockBytes(),
		MaxSlots:    1,
	})

	first := testNode(t, 0, 0, 0)
	var ref *cache.Ref[*TextureObject]
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ref, err = tc.Get(context.Background(), first)
		if err == nil {
			break
		}
		require.ErrorIs(t, err, cache.ErrNotReady)
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, err)

	// The only slot is pinned; a second block cannot be promoted but the
	// refusal is transient, not a recorded failure. Wait for its payload
	// first so the refusal provably comes from the pool.
	second := testNode(t, 1, 0, 0)
	waitData(t, dc, second).Release()
	_, err = tc.Get(context.Background(), second)
	assert.ErrorIs(t, err, cache.ErrNotReady)
	assert.Equal(t, int64(0), tc.Stats().Failures)

	// Releasing the pin frees the slot for the next promotion.
	ref.Release()
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ref2, err := tc.Get(context.Background(), second)
		if err == nil {
			ref2.Release()
			return
		}
		require.ErrorIs(t, err, cache.ErrNotReady)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("promotion did not recover after release")
}

func TestTextureCacheFailurePropagates(t *testing.T) {
	bad := lod.NewNodeID(0, 1, 1, 1)
	source, err := volume.NewSyntheticSource(testInfo, volume.WithFailure(bad))
	require.NoError(t, err)
	dc := newTestDataCache(t, source, DataCacheConfig{Workers: 1})
	tc, _ := newTestTextureCache(t, dc, TextureCacheConfig{})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err = tc.Get(context.Background(), bad)
		require.Error(t, err)
		if !errors.Is(err, cache.ErrNotReady) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	var failed *cache.FailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, volume.ErrBlockNotFound)
}
