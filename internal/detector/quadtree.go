package detector

import (
	"math"

	"mandexing/internal/crystal"
	"mandexing/pkg/geometry"
)

// Index defaults.
const (
	DefaultLeafSize  = 10
	DefaultMaxDepth  = 24
	DefaultTolerance = 5.0 // pixels
)

// IndexOptions tunes the quad-tree.
type IndexOptions struct {
	// LeafSize is the item count at or below which a node is not split.
	LeafSize int
	// MaxDepth bounds both construction and query descent.
	MaxDepth int
	// Tolerance is the half-size, in pixels, of the box around a query
	// point within which a reflection counts as a hit.
	Tolerance float64
}

// DefaultIndexOptions returns the defaults.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		LeafSize:  DefaultLeafSize,
		MaxDepth:  DefaultMaxDepth,
		Tolerance: DefaultTolerance,
	}
}

func (o IndexOptions) normalised() IndexOptions {
	if o.LeafSize <= 0 {
		o.LeafSize = DefaultLeafSize
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Tolerance < 0 {
		o.Tolerance = 0
	}
	return o
}

const noChild int32 = -1

type node struct {
	bounds   geometry.Rect
	children [4]int32
	items    []int
	depth    int
}

func (n *node) leaf() bool {
	return n.children == [4]int32{noChild, noChild, noChild, noChild}
}

// QuadTree indexes the screen positions of on-image, projected reflections.
// Nodes live in one slice and refer to their children by index. Every node
// keeps the ids below it so a query may stop at any level and scan.
//
// A QuadTree is a snapshot: it is rebuilt, not updated, when the
// reflections move.
type QuadTree struct {
	nodes  []node
	points map[int]geometry.Point2D
	opts   IndexOptions
	depth  int
}

// BuildIndex builds a tree over the reflections that are on image and
// projected, keyed by their position in refls.
func BuildIndex(refls []crystal.Reflection, opts IndexOptions) *QuadTree {
	t := &QuadTree{
		points: make(map[int]geometry.Point2D),
		opts:   opts.normalised(),
	}

	var ids []int
	var pts []geometry.Point2D
	for i, r := range refls {
		if !r.OnImage || !r.Projected {
			continue
		}
		p := r.Screen.XY()
		t.points[i] = p
		ids = append(ids, i)
		pts = append(pts, p)
	}
	if len(ids) == 0 {
		return t
	}

	t.nodes = append(t.nodes, newNode(geometry.BoundingBox(pts), ids, 0))
	stack := []int{0}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, t.split(n)...)
	}
	return t
}

func newNode(bounds geometry.Rect, items []int, depth int) node {
	return node{
		bounds:   bounds,
		children: [4]int32{noChild, noChild, noChild, noChild},
		items:    items,
		depth:    depth,
	}
}

// split partitions node n into quadrants and returns the children that
// still need splitting.
func (t *QuadTree) split(n int) []int {
	parent := t.nodes[n]
	if parent.depth > t.depth {
		t.depth = parent.depth
	}
	if len(parent.items) <= t.opts.LeafSize ||
		parent.depth >= t.opts.MaxDepth ||
		(parent.bounds.Width <= 0 && parent.bounds.Height <= 0) {
		return nil
	}

	var quads [4][]int
	for _, id := range parent.items {
		q := parent.bounds.QuadrantOf(t.points[id])
		quads[q] = append(quads[q], id)
	}

	var pending []int
	for q, items := range quads {
		if len(items) == 0 {
			continue
		}
		pts := make([]geometry.Point2D, len(items))
		for i, id := range items {
			pts[i] = t.points[id]
		}

		child := int32(len(t.nodes))
		t.nodes = append(t.nodes, newNode(geometry.BoundingBox(pts), items, parent.depth+1))
		t.nodes[n].children[q] = child

		if len(items) == len(parent.items) {
			// no improvement; splitting again would loop
			if parent.depth+1 > t.depth {
				t.depth = parent.depth + 1
			}
			continue
		}
		pending = append(pending, int(child))
	}
	return pending
}

// Len returns the number of indexed reflections.
func (t *QuadTree) Len() int { return len(t.points) }

// NodeCount returns the number of nodes.
func (t *QuadTree) NodeCount() int { return len(t.nodes) }

// Depth returns the depth of the deepest node; a lone root has depth 0.
func (t *QuadTree) Depth() int { return t.depth }

// Query returns the indexed reflection nearest to (x, y), in beam-centred
// pixels, among those within the tolerance box. Ties go to the lowest id.
// It returns (-1, false) when nothing is close enough.
func (t *QuadTree) Query(x, y float64) (int, bool) {
	if len(t.nodes) == 0 {
		return -1, false
	}
	p := geometry.Point2D{X: x, Y: y}
	tol := t.opts.Tolerance
	if !withinTolerance(t.nodes[0].bounds, p, tol) {
		return -1, false
	}

	n := 0
	for steps := 0; steps <= t.opts.MaxDepth; steps++ {
		cur := &t.nodes[n]
		if cur.leaf() {
			break
		}
		// candidates across a mid-line could still be within tolerance
		c := cur.bounds.Center()
		if math.Abs(x-c.X) <= tol || math.Abs(y-c.Y) <= tol {
			break
		}
		child := cur.children[cur.bounds.QuadrantOf(p)]
		if child == noChild {
			return -1, false
		}
		if !withinTolerance(t.nodes[child].bounds, p, tol) {
			return -1, false
		}
		n = int(child)
	}

	return nearest(t.nodes[n].items, t.points, p, tol)
}

// withinTolerance reports whether p lies in r grown by tol on every side.
func withinTolerance(r geometry.Rect, p geometry.Point2D, tol float64) bool {
	return p.X >= r.X-tol && p.X <= r.X+r.Width+tol &&
		p.Y >= r.Y-tol && p.Y <= r.Y+r.Height+tol
}

// nearest scans ids in order and keeps the closest qualifying one.
func nearest(ids []int, points map[int]geometry.Point2D, p geometry.Point2D, tol float64) (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for _, id := range ids {
		q := points[id]
		if math.Abs(q.X-p.X) > tol || math.Abs(q.Y-p.Y) > tol {
			continue
		}
		if d := q.Distance(p); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best >= 0
}

// LinearScan answers the same question as Query without an index. It is
// the reference for tests and is fine for a handful of reflections.
func LinearScan(refls []crystal.Reflection, x, y, tol float64) (int, bool) {
	points := make(map[int]geometry.Point2D)
	var ids []int
	for i, r := range refls {
		if !r.OnImage || !r.Projected {
			continue
		}
		points[i] = r.Screen.XY()
		ids = append(ids, i)
	}
	return nearest(ids, points, geometry.Point2D{X: x, Y: y}, tol)
}
