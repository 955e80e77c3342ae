package livre

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/livre/gpu"
	"github.com/JamesLinus/livre/render"
	"github.com/JamesLinus/livre/volume"
)

var testInfo = volume.VolumeInformation{
	RootGrid:   [3]uint32{2, 2, 2},
	Levels:     2,
	WorldSize:  [3]float32{2, 2, 2},
	BlockSize:  [3]uint32{8, 8, 8},
	Channels:   1,
	SampleType: volume.SampleUInt8,
}

func newTestStreamer(t *testing.T, optFns ...Option) (*Streamer, *gpu.SoftwareDevice) {
	t.Helper()
	source, err := volume.NewSyntheticSource(testInfo)
	require.NoError(t, err)

	device := gpu.NewSoftwareDevice()
	optFns = append([]Option{
		WithLogger(NoopLogger()),
		WithDataBudget(64 * testInfo.BlockBytes()),
		WithTextureBudget(64 * testInfo.BlockBytes()),
	}, optFns...)

	s, err := New(source, device, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, device
}

func TestStreamerRendersCoarseLevel(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	s, device := newTestStreamer(t, WithMetricsCollector(metrics))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frame, err := s.RenderUntilComplete(ctx, render.View{Eye: [3]float32{0, 0, 4}})
	require.NoError(t, err)
	defer frame.End()

	require.Len(t, frame.Bricks, 8)
	for _, brick := range frame.Bricks {
		data, _, err := device.ReadTexture(brick.Texture.Texture)
		require.NoError(t, err)
		assert.Equal(t, volume.SyntheticSamples(testInfo, brick.ID), data)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(8), stats.DecodeCount)
	assert.Equal(t, int64(8), stats.UploadCount)
	assert.NotZero(t, stats.FrameCount)

	assert.Equal(t, 8, s.DataStats().Entries)
	assert.Equal(t, 8, s.TextureStats().Entries)
}

func TestStreamerPrefetchWarmsDataTier(t *testing.T) {
	s, _ := newTestStreamer(t)
	ctx := context.Background()

	tree := s.Tree()
	fine := tree.NodesAtLevel(1)

	// A full decode queue refuses part of a large prefetch, so issue it
	// again until everything is admitted and decoded.
	deadline := time.Now().Add(5 * time.Second)
	for s.DataStats().Entries < len(fine) {
		require.True(t, time.Now().Before(deadline))
		require.NoError(t, s.Prefetch(ctx, fine))
		time.Sleep(time.Millisecond)
	}
	assert.Zero(t, s.TextureStats().Entries, "prefetch stays off the device")
}

func TestStreamerClose(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo)
	require.NoError(t, err)
	s, err := New(source, gpu.NewSoftwareDevice(), WithLogger(NoopLogger()))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	_, err = s.BeginFrame(context.Background(), render.View{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Prefetch(context.Background(), nil), ErrClosed)
}

func TestStreamerRejectsUndersizedBudget(t *testing.T) {
	source, err := volume.NewSyntheticSource(testInfo)
	require.NoError(t, err)
	_, err = New(source, gpu.NewSoftwareDevice(),
		WithDataBudget(1))
	assert.Error(t, err)
}
