package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/JamesLinus/livre/lod"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// FillBytes fills buf with uniformly random bytes. Incompressible by
// construction, which exercises codec fallback paths.
func (r *RNG) FillBytes(buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Read(buf)
}

// FillRamp fills buf with a low-entropy ramp pattern that compresses
// well, the opposite fixture to FillBytes.
func (r *RNG) FillRamp(buf []byte) {
	r.mu.Lock()
	offset := byte(r.rand.Intn(256))
	r.mu.Unlock()
	for i := range buf {
		buf[i] = offset + byte(i/16)
	}
}

// Intn returns a uniform int in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a uniform float32 in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// NodeID returns a uniformly random block identifier of the tree.
func (r *RNG) NodeID(tree *lod.Tree) lod.NodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	level := uint32(r.rand.Intn(int(tree.Levels())))
	grid := tree.GridSize(level)
	return lod.NewNodeID(level,
		uint32(r.rand.Intn(int(grid[0]))),
		uint32(r.rand.Intn(int(grid[1]))),
		uint32(r.rand.Intn(int(grid[2]))),
	)
}

// Eye returns a random viewpoint on a sphere of the given radius around
// the origin, where the volume is centered.
func (r *RNG) Eye(radius float32) [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := [3]float32{
		float32(r.rand.NormFloat64()),
		float32(r.rand.NormFloat64()),
		float32(r.rand.NormFloat64()),
	}
	norm := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	if norm == 0 {
		return [3]float32{radius, 0, 0}
	}
	scale := radius / float32(math.Sqrt(float64(norm)))
	return [3]float32{v[0] * scale, v[1] * scale, v[2] * scale}
}
