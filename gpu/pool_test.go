package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = TextureFormat{Channels: 1, BytesPerSample: 1}

func TestPoolAcquireRelease(t *testing.T) {
	device := NewSoftwareDevice()
	pool := NewTexturePool(device, [3]uint32{8, 8, 8}, testFormat, 2)

	slot1, err := pool.Acquire()
	require.NoError(t, err)
	slot2, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Allocated())
	assert.Equal(t, 2, device.Creates)

	_, err = pool.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	// Release and reacquire: storage is reused, not reallocated.
	pool.Release(slot1)
	slot3, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, slot1.Texture(), slot3.Texture())
	assert.Equal(t, 2, device.Creates, "no allocation churn on reuse")

	pool.Release(slot2)
	pool.Release(slot3)
	require.NoError(t, pool.Close())
	assert.Equal(t, 0, device.TextureCount())
}

func TestPoolSlotBytes(t *testing.T) {
	pool := NewTexturePool(NewSoftwareDevice(), [3]uint32{16, 16, 8},
		TextureFormat{Channels: 3, BytesPerSample: 2}, 0)
	assert.Equal(t, int64(16*16*8*3*2), pool.SlotBytes())
}

func TestSlotState(t *testing.T) {
	device := NewSoftwareDevice()
	pool := NewTexturePool(device, [3]uint32{16, 16, 16}, testFormat, 0)

	slot, err := pool.Acquire()
	require.NoError(t, err)

	state := slot.State([3]uint32{8, 16, 4})
	assert.True(t, state.Valid())
	assert.Equal(t, [3]uint32{8, 16, 4}, state.VoxelDims)
	assert.Equal(t, float32(0.5), state.CoordsMax[0])
	assert.Equal(t, float32(1.0), state.CoordsMax[1])
	assert.Equal(t, float32(0.25), state.CoordsMax[2])
	assert.Equal(t, [3]float32{0, 0, 0}, state.CoordsMin)

	assert.False(t, TextureState{}.Valid())
}

func TestSoftwareDeviceRoundTrip(t *testing.T) {
	device := NewSoftwareDevice()

	tex, err := device.CreateTexture3D([3]uint32{4, 4, 4}, testFormat)
	require.NoError(t, err)

	payload := make([]byte, 2*2*2)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	require.NoError(t, device.Upload(tex, [3]uint32{2, 2, 2}, payload))

	data, dims, err := device.ReadTexture(tex)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{2, 2, 2}, dims)
	assert.Equal(t, payload, data)

	// Upload larger than storage is rejected.
	assert.Error(t, device.Upload(tex, [3]uint32{8, 8, 8}, make([]byte, 512)))
	// Payload size must match the region.
	assert.Error(t, device.Upload(tex, [3]uint32{2, 2, 2}, make([]byte, 7)))

	require.NoError(t, device.DeleteTexture(tex))
	assert.Error(t, device.DeleteTexture(tex))
}
