// Package gpu abstracts the device texture storage used by the texture
// cache tier and provides the pooled allocator over it.
//
// The real device (a GL context or similar) belongs to the hosting render
// framework; this package only defines the narrow surface the streaming
// pipeline needs plus a software implementation backed by host memory for
// tests and headless use.
//
// Thread contract: a Device and everything built on it (TexturePool, the
// texture cache tier) are owned by the single thread that owns the
// rendering context. None of it is safe for concurrent use, and none of it
// locks, by construction.
package gpu

import "errors"

// TextureID is an opaque device texture handle. Zero is never a valid
// handle, mirroring GL texture names.
type TextureID uint64

// InvalidTexture is the unset texture handle.
const InvalidTexture TextureID = 0

// TextureFormat fixes the channel layout of pool storage. All slots of one
// pool share a format, sized from the dataset metadata.
type TextureFormat struct {
	Channels       uint32
	BytesPerSample uint32
}

// BytesPerVoxel returns the storage size of one voxel.
func (f TextureFormat) BytesPerVoxel() int64 {
	return int64(f.Channels) * int64(f.BytesPerSample)
}

// Device creates, fills and destroys 3-D textures.
type Device interface {
	// CreateTexture3D allocates device storage of the given dimensions.
	CreateTexture3D(dims [3]uint32, format TextureFormat) (TextureID, error)
	// Upload fills the sub-region [0,dims) of the texture with data,
	// which holds dims[0]*dims[1]*dims[2] voxels in x-major order.
	Upload(tex TextureID, dims [3]uint32, data []byte) error
	// DeleteTexture destroys device storage.
	DeleteTexture(tex TextureID) error
}

// Readback is an optional Device capability that returns the last uploaded
// content of a texture. The software device implements it; tests use it to
// verify upload round trips.
type Readback interface {
	ReadTexture(tex TextureID) (data []byte, dims [3]uint32, err error)
}

// TextureState locates a resident block inside its pool slot: the device
// handle plus the normalized texture-coordinate sub-range the block
// occupies (slots can be larger than the block they currently hold).
type TextureState struct {
	Texture   TextureID
	CoordsMin [3]float32
	CoordsMax [3]float32
	// VoxelDims is the voxel extent of the block content.
	VoxelDims [3]uint32
}

// Valid reports whether the state refers to resident device storage.
func (s TextureState) Valid() bool { return s.Texture != InvalidTexture }

// ErrPoolExhausted is returned by TexturePool.Acquire when every slot is in
// use and the allocation ceiling is reached. Callers treat it like a
// not-ready block: skip and retry next frame.
var ErrPoolExhausted = errors.New("gpu: texture pool exhausted")
