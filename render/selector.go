package render

import (
	"math"

	"github.com/JamesLinus/livre/lod"
)

// View is the per-frame camera state the selector and the blend ordering
// depend on.
type View struct {
	// Eye is the viewpoint in world space.
	Eye [3]float32
}

// Selector decides which blocks a frame needs, as a set of identifiers.
// The frame loop resolves residency; the selector only expresses desire.
// Implementations must tolerate being called every frame.
type Selector interface {
	Select(tree *lod.Tree, view View) []lod.NodeID
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(tree *lod.Tree, view View) []lod.NodeID

// Select implements Selector.
func (f SelectorFunc) Select(tree *lod.Tree, view View) []lod.NodeID {
	return f(tree, view)
}

// LevelSelector requests every block of one fixed level. The simplest
// useful visibility driver; also the workhorse of pipeline tests.
type LevelSelector struct {
	Level uint32
}

// Select implements Selector.
func (s LevelSelector) Select(tree *lod.Tree, _ View) []lod.NodeID {
	return tree.NodesAtLevel(s.Level)
}

// DistanceSelector refines by proximity: blocks whose coarse-level parent
// region lies within Radius of the eye are requested at FineLevel, the
// rest at CoarseLevel. A crude but serviceable level-of-detail policy for
// hosts without their own frustum logic.
type DistanceSelector struct {
	CoarseLevel uint32
	FineLevel   uint32
	Radius      float32
}

// Select implements Selector.
func (s DistanceSelector) Select(tree *lod.Tree, view View) []lod.NodeID {
	if s.FineLevel <= s.CoarseLevel || s.FineLevel >= tree.Levels() {
		return tree.NodesAtLevel(s.CoarseLevel)
	}

	var ids []lod.NodeID
	for _, id := range tree.NodesAtLevel(s.CoarseLevel) {
		if tree.WorldBox(id).DistanceTo(view.Eye) > s.Radius {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, s.refine(tree, id)...)
	}
	return ids
}

// refine expands a block into its FineLevel descendants that exist in the
// tree.
func (s DistanceSelector) refine(tree *lod.Tree, id lod.NodeID) []lod.NodeID {
	if id.Level() == s.FineLevel {
		return []lod.NodeID{id}
	}
	var ids []lod.NodeID
	for _, child := range id.Children() {
		if !tree.Contains(child) {
			continue
		}
		ids = append(ids, s.refine(tree, child)...)
	}
	return ids
}

// distance clamps a brick distance into a finite float32 for ordering.
func distance(box lod.Box, eye [3]float32) float32 {
	d := box.DistanceTo(eye)
	if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
		return math.MaxFloat32
	}
	return d
}
