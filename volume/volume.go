// Package volume defines the dataset model of the streaming pipeline: static
// volume metadata, the DataSource a decode tier pulls blocks from, and a
// compressed block container format stored on a blobstore.
package volume

import (
	"context"
	"errors"
	"fmt"

	"github.com/JamesLinus/livre/lod"
)

// ErrBlockNotFound is returned when a dataset holds no payload for an
// otherwise valid block identifier.
var ErrBlockNotFound = errors.New("volume: block not found")

// SampleType identifies the scalar type of one voxel channel.
type SampleType uint8

const (
	SampleUInt8 SampleType = iota
	SampleUInt16
	SampleUInt32
	SampleInt8
	SampleInt16
	SampleInt32
	SampleFloat32
)

// BytesPerSample returns the storage size of one sample.
func (t SampleType) BytesPerSample() int64 {
	switch t {
	case SampleUInt8, SampleInt8:
		return 1
	case SampleUInt16, SampleInt16:
		return 2
	case SampleUInt32, SampleInt32, SampleFloat32:
		return 4
	default:
		return 0
	}
}

func (t SampleType) String() string {
	switch t {
	case SampleUInt8:
		return "uint8"
	case SampleUInt16:
		return "uint16"
	case SampleUInt32:
		return "uint32"
	case SampleInt8:
		return "int8"
	case SampleInt16:
		return "int16"
	case SampleInt32:
		return "int32"
	case SampleFloat32:
		return "float32"
	default:
		return fmt.Sprintf("sampletype(%d)", uint8(t))
	}
}

// VolumeInformation is the static metadata of one dataset. It sizes the
// texture allocator pool (BlockSize is the maximum block dimensions) and
// gives every tier the exact byte footprint of a decoded block.
type VolumeInformation struct {
	// RootGrid is the block grid of level 0; each finer level doubles it
	// per axis.
	RootGrid [3]uint32
	// Levels is the number of LOD levels.
	Levels uint32
	// WorldSize is the world-space extent of the whole volume.
	WorldSize [3]float32
	// BlockSize is the voxel dimensions of one block, uniform across the
	// dataset.
	BlockSize [3]uint32
	// Channels is the number of channels per voxel.
	Channels uint32
	// SampleType is the scalar type of each channel.
	SampleType SampleType
}

// Validate checks the metadata for internal consistency.
func (info VolumeInformation) Validate() error {
	if info.SampleType.BytesPerSample() == 0 {
		return fmt.Errorf("volume: unknown sample type %d", info.SampleType)
	}
	if info.Channels == 0 {
		return errors.New("volume: zero channels")
	}
	for i := 0; i < 3; i++ {
		if info.BlockSize[i] == 0 {
			return fmt.Errorf("volume: zero block size on axis %d", i)
		}
	}
	_, err := info.Tree()
	return err
}

// Tree returns the LOD hierarchy geometry described by the metadata.
func (info VolumeInformation) Tree() (*lod.Tree, error) {
	return lod.NewTree(info.RootGrid, info.Levels, info.WorldSize)
}

// BlockBytes returns the exact decoded size of one block in bytes. Every
// block of the dataset decodes to this size; the cache tiers charge it
// against their budgets.
func (info VolumeInformation) BlockBytes() int64 {
	return int64(info.BlockSize[0]) * int64(info.BlockSize[1]) * int64(info.BlockSize[2]) *
		int64(info.Channels) * info.SampleType.BytesPerSample()
}

// DataSource supplies decoded voxel blocks. LoadBlock is called from decode
// worker goroutines and must be safe for concurrent use; it returns a
// buffer of exactly Info().BlockBytes() bytes owned by the caller.
type DataSource interface {
	Info() VolumeInformation
	LoadBlock(ctx context.Context, id lod.NodeID) ([]byte, error)
	Close() error
}
