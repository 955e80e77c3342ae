package volume

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/livre/blobstore"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/resource"
	"github.com/JamesLinus/livre/testutil"
)

func testInfo() VolumeInformation {
	return VolumeInformation{
		RootGrid:   [3]uint32{1, 1, 1},
		Levels:     2,
		WorldSize:  [3]float32{1, 1, 1},
		BlockSize:  [3]uint32{4, 4, 4},
		Channels:   1,
		SampleType: SampleUInt8,
	}
}

func writeDataset(t *testing.T, store blobstore.BlobStore, name string, codec Codec, info VolumeInformation, ids []lod.NodeID) {
	t.Helper()
	w, err := NewWriter(info, codec)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, w.Add(id, SyntheticSamples(info, id)))
	}
	require.NoError(t, w.WriteTo(context.Background(), store, name))
}

func TestBlockFileRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			ctx := context.Background()
			info := testInfo()
			store := blobstore.NewMemoryStore()

			tree, err := info.Tree()
			require.NoError(t, err)
			ids := append(tree.NodesAtLevel(0), tree.NodesAtLevel(1)...)
			writeDataset(t, store, "v.lvb", codec, info, ids)

			f, err := OpenBlockFile(ctx, store, "v.lvb")
			require.NoError(t, err)
			defer f.Close()

			assert.Equal(t, info, f.Info())
			assert.Equal(t, len(ids), f.BlockCount())

			for _, id := range ids {
				samples, err := f.LoadBlock(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, SyntheticSamples(info, id), samples, "block %s", id)
			}
		})
	}
}

func TestBlockFileMissingBlock(t *testing.T) {
	ctx := context.Background()
	info := testInfo()
	store := blobstore.NewMemoryStore()
	writeDataset(t, store, "v.lvb", CodecLZ4, info, []lod.NodeID{lod.NewNodeID(0, 0, 0, 0)})

	f, err := OpenBlockFile(ctx, store, "v.lvb")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.LoadBlock(ctx, lod.NewNodeID(1, 0, 0, 0))
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBlockFileRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "junk", []byte("definitely not a volume")))

	_, err := OpenBlockFile(ctx, store, "junk")
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestBlockFileWithIOLimit(t *testing.T) {
	ctx := context.Background()
	info := testInfo()
	store := blobstore.NewMemoryStore()
	id := lod.NewNodeID(0, 0, 0, 0)
	writeDataset(t, store, "v.lvb", CodecNone, info, []lod.NodeID{id})

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	f, err := OpenBlockFile(ctx, store, "v.lvb", WithController(rc))
	require.NoError(t, err)
	defer f.Close()

	samples, err := f.LoadBlock(ctx, id)
	require.NoError(t, err)
	assert.Len(t, samples, int(info.BlockBytes()))
}

func TestWriterValidation(t *testing.T) {
	info := testInfo()
	w, err := NewWriter(info, CodecLZ4)
	require.NoError(t, err)

	id := lod.NewNodeID(0, 0, 0, 0)

	// Wrong payload size.
	assert.Error(t, w.Add(id, make([]byte, 3)))

	// Outside the hierarchy.
	assert.Error(t, w.Add(lod.NewNodeID(5, 0, 0, 0), SyntheticSamples(info, id)))

	require.NoError(t, w.Add(id, SyntheticSamples(info, id)))
	assert.Error(t, w.Add(id, SyntheticSamples(info, id)), "duplicate block")
}

func TestSyntheticSourceFailure(t *testing.T) {
	info := testInfo()
	bad := lod.NewNodeID(1, 1, 1, 1)
	src, err := NewSyntheticSource(info, WithFailure(bad))
	require.NoError(t, err)

	_, err = src.LoadBlock(context.Background(), bad)
	assert.ErrorIs(t, err, ErrBlockNotFound)

	good, err := src.LoadBlock(context.Background(), lod.NewNodeID(0, 0, 0, 0))
	require.NoError(t, err)
	assert.Len(t, good, int(info.BlockBytes()))
	assert.Equal(t, 1, src.Loads())
}

func TestBlockFileIncompressiblePayload(t *testing.T) {
	// Random payloads defeat compression; the writer falls back to
	// storing them raw and the round trip still holds.
	ctx := context.Background()
	info := testInfo()
	store := blobstore.NewMemoryStore()
	rng := testutil.NewRNG(1)

	id := lod.NewNodeID(0, 0, 0, 0)
	payload := make([]byte, info.BlockBytes())
	rng.FillBytes(payload)

	w, err := NewWriter(info, CodecZSTD)
	require.NoError(t, err)
	require.NoError(t, w.Add(id, payload))
	require.NoError(t, w.WriteTo(ctx, store, "noise.lvb"))

	f, err := OpenBlockFile(ctx, store, "noise.lvb")
	require.NoError(t, err)
	defer f.Close()

	got, err := f.LoadBlock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBlockBytes(t *testing.T) {
	info := testInfo()
	assert.Equal(t, int64(64), info.BlockBytes())

	info.Channels = 3
	info.SampleType = SampleUInt16
	assert.Equal(t, int64(64*3*2), info.BlockBytes())

	// Metadata methods work on rvalue returns, the way the tiers chain
	// them off DataSource.Info().
	src, err := NewSyntheticSource(testInfo())
	require.NoError(t, err)
	assert.Equal(t, testInfo().BlockBytes(), src.Info().BlockBytes())
	_, err = src.Info().Tree()
	require.NoError(t, err)
	require.NoError(t, src.Info().Validate())
}
