package render

import "container/heap"

// Compile time check to ensure brickQueue satisfies the heap interface.
var _ heap.Interface = (*brickQueue)(nil)

// BlendOrder selects the compositing order of the brick traversal.
type BlendOrder int

const (
	// FrontToBack emits the nearest brick first, for front-to-back
	// compositing with early ray termination.
	FrontToBack BlendOrder = iota
	// BackToFront emits the farthest brick first, for classic alpha
	// blending.
	BackToFront
)

func (o BlendOrder) String() string {
	if o == BackToFront {
		return "back-to-front"
	}
	return "front-to-back"
}

// brickQueue orders bricks by viewpoint distance. It implements
// heap.Interface; Order false pops the nearest brick first.
type brickQueue struct {
	Order bool
	Items []*RenderBrick
}

func (q *brickQueue) Len() int { return len(q.Items) }

func (q *brickQueue) Less(i, j int) bool {
	if !q.Order {
		return q.Items[i].Distance < q.Items[j].Distance
	}
	return q.Items[i].Distance > q.Items[j].Distance
}

func (q *brickQueue) Swap(i, j int) {
	q.Items[i], q.Items[j] = q.Items[j], q.Items[i]
}

func (q *brickQueue) Push(x any) {
	item, _ := x.(*RenderBrick)
	q.Items = append(q.Items, item)
}

func (q *brickQueue) Pop() any {
	old := q.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	q.Items = old[:n-1]
	return item
}
