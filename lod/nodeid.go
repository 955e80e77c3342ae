// Package lod addresses blocks of a multi-resolution volume.
//
// A volume is subdivided into an octree-like hierarchy of levels. Level 0 is
// the coarsest representation; each finer level doubles the block grid along
// every axis. A NodeID names one block at one level and is the cache key for
// every tier of the streaming pipeline.
package lod

import "fmt"

// NodeID is a compact identifier for one block of the LOD hierarchy.
//
// Layout (most significant first):
//
//	[8 bits level][16 bits x][16 bits y][16 bits z]
//
// The zero value is not a valid block address; use Invalid for the explicit
// "no node" value. NodeIDs order level-major, then x, y, z, so the natural
// uint64 ordering is a total order that is stable for the dataset lifetime.
type NodeID uint64

// Invalid is the reserved "no node" identifier.
const Invalid NodeID = 1<<64 - 1

const (
	maxLevel    = 0xFF
	maxGridSize = 0xFFFF
)

// NewNodeID packs a level and grid position into a NodeID.
// Positions outside the representable 16-bit grid return Invalid.
func NewNodeID(level uint32, x, y, z uint32) NodeID {
	if level > maxLevel || x > maxGridSize || y > maxGridSize || z > maxGridSize {
		return Invalid
	}
	return NodeID(uint64(level)<<48 | uint64(x)<<32 | uint64(y)<<16 | uint64(z))
}

// Level returns the LOD level of the node. Level 0 is the coarsest.
func (id NodeID) Level() uint32 { return uint32(id>>48) & maxLevel }

// Position returns the block grid coordinates within the node's level.
func (id NodeID) Position() (x, y, z uint32) {
	return uint32(id>>32) & maxGridSize, uint32(id>>16) & maxGridSize, uint32(id) & maxGridSize
}

// IsValid reports whether the identifier addresses a block.
func (id NodeID) IsValid() bool { return id != Invalid }

// Parent returns the identifier of the enclosing block one level coarser.
// The root (level 0) has no parent and returns Invalid.
func (id NodeID) Parent() NodeID {
	if !id.IsValid() || id.Level() == 0 {
		return Invalid
	}
	x, y, z := id.Position()
	return NewNodeID(id.Level()-1, x>>1, y>>1, z>>1)
}

// Children returns the identifiers of the eight enclosed blocks one level
// finer. The caller is responsible for clipping against the actual grid of
// the finer level; children outside a non-cubic grid simply address no data.
func (id NodeID) Children() [8]NodeID {
	var children [8]NodeID
	if !id.IsValid() || id.Level() >= maxLevel {
		for i := range children {
			children[i] = Invalid
		}
		return children
	}
	x, y, z := id.Position()
	i := 0
	for dx := uint32(0); dx < 2; dx++ {
		for dy := uint32(0); dy < 2; dy++ {
			for dz := uint32(0); dz < 2; dz++ {
				children[i] = NewNodeID(id.Level()+1, x<<1|dx, y<<1|dy, z<<1|dz)
				i++
			}
		}
	}
	return children
}

func (id NodeID) String() string {
	if !id.IsValid() {
		return "node(invalid)"
	}
	x, y, z := id.Position()
	return fmt.Sprintf("node(l=%d %d,%d,%d)", id.Level(), x, y, z)
}
