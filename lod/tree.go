package lod

import (
	"errors"
	"fmt"
	"math"
)

// Box is an axis-aligned box in world space.
type Box struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the center point of the box.
func (b Box) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) * 0.5,
		(b.Min[1] + b.Max[1]) * 0.5,
		(b.Min[2] + b.Max[2]) * 0.5,
	}
}

// DistanceTo returns the euclidean distance from the box center to p.
func (b Box) DistanceTo(p [3]float32) float32 {
	c := b.Center()
	dx := float64(c[0] - p[0])
	dy := float64(c[1] - p[1])
	dz := float64(c[2] - p[2])
	return float32(math.Sqrt(dx*dx + dy*dy + dz*dz))
}

// ErrInvalidTree is returned for a degenerate hierarchy description.
var ErrInvalidTree = errors.New("lod: invalid tree geometry")

// Tree describes the block hierarchy geometry of one dataset: how many
// levels exist, how many blocks each level has per axis, and where each
// block sits in world space. The volume is centered at the origin, matching
// the renderer's global bounding box convention.
//
// Tree is immutable and safe for concurrent use.
type Tree struct {
	rootGrid  [3]uint32
	levels    uint32
	worldSize [3]float32
}

// NewTree creates a hierarchy with the given level-0 block grid and level
// count. Each finer level doubles the grid along every axis.
func NewTree(rootGrid [3]uint32, levels uint32, worldSize [3]float32) (*Tree, error) {
	if levels == 0 || levels > 16 {
		return nil, fmt.Errorf("%w: %d levels", ErrInvalidTree, levels)
	}
	for i := 0; i < 3; i++ {
		if rootGrid[i] == 0 || worldSize[i] <= 0 {
			return nil, fmt.Errorf("%w: axis %d", ErrInvalidTree, i)
		}
		if rootGrid[i]<<(levels-1) > maxGridSize {
			return nil, fmt.Errorf("%w: grid exceeds addressable range", ErrInvalidTree)
		}
	}
	return &Tree{rootGrid: rootGrid, levels: levels, worldSize: worldSize}, nil
}

// Levels returns the number of LOD levels. Level levels-1 is the finest.
func (t *Tree) Levels() uint32 { return t.levels }

// GridSize returns the block grid dimensions of a level.
func (t *Tree) GridSize(level uint32) [3]uint32 {
	return [3]uint32{
		t.rootGrid[0] << level,
		t.rootGrid[1] << level,
		t.rootGrid[2] << level,
	}
}

// Contains reports whether id addresses a block of this hierarchy.
func (t *Tree) Contains(id NodeID) bool {
	if !id.IsValid() || id.Level() >= t.levels {
		return false
	}
	grid := t.GridSize(id.Level())
	x, y, z := id.Position()
	return x < grid[0] && y < grid[1] && z < grid[2]
}

// NodesAtLevel enumerates every block identifier of one level in NodeID
// order. Intended for visibility drivers and dataset writers; the count can
// be large at fine levels.
func (t *Tree) NodesAtLevel(level uint32) []NodeID {
	if level >= t.levels {
		return nil
	}
	grid := t.GridSize(level)
	ids := make([]NodeID, 0, grid[0]*grid[1]*grid[2])
	for x := uint32(0); x < grid[0]; x++ {
		for y := uint32(0); y < grid[1]; y++ {
			for z := uint32(0); z < grid[2]; z++ {
				ids = append(ids, NewNodeID(level, x, y, z))
			}
		}
	}
	return ids
}

// NodeCount returns the number of blocks across all levels.
func (t *Tree) NodeCount() uint64 {
	var n uint64
	for level := uint32(0); level < t.levels; level++ {
		grid := t.GridSize(level)
		n += uint64(grid[0]) * uint64(grid[1]) * uint64(grid[2])
	}
	return n
}

// WorldBox returns the world-space bounds of a block. The whole volume spans
// [-worldSize/2, worldSize/2] on every axis.
func (t *Tree) WorldBox(id NodeID) Box {
	grid := t.GridSize(id.Level())
	x, y, z := id.Position()
	var box Box
	pos := [3]uint32{x, y, z}
	for i := 0; i < 3; i++ {
		step := t.worldSize[i] / float32(grid[i])
		box.Min[i] = -t.worldSize[i]*0.5 + float32(pos[i])*step
		box.Max[i] = box.Min[i] + step
	}
	return box
}
