package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/livre/lod"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	bufA := make([]byte, 64)
	bufB := make([]byte, 64)
	a.FillBytes(bufA)
	b.FillBytes(bufB)
	assert.Equal(t, bufA, bufB)

	a.Reset()
	reset := make([]byte, 64)
	a.FillBytes(reset)
	assert.Equal(t, bufA, reset)
}

func TestRNGNodeIDInTree(t *testing.T) {
	tree, err := lod.NewTree([3]uint32{2, 3, 1}, 3, [3]float32{1, 1, 1})
	require.NoError(t, err)

	rng := NewRNG(7)
	for i := 0; i < 100; i++ {
		assert.True(t, tree.Contains(rng.NodeID(tree)))
	}
}

func TestRNGEyeOnSphere(t *testing.T) {
	rng := NewRNG(1)
	eye := rng.Eye(2)
	norm := eye[0]*eye[0] + eye[1]*eye[1] + eye[2]*eye[2]
	assert.InDelta(t, 4.0, float64(norm), 1e-3)
}
