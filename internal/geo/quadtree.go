package geo

import "sort"

const (
	// Maximum number of points in a node before splitting
	nodeCapacity = 32

	// Maximum depth of the tree
	maxDepth = 16

	// Minimum node size in meters
	minNodeSizeM = 0.5

	// Padding added around the indexed extent
	boundsPaddingM = 1.0
)

// Point is an indexed local position, usually a step id and its location
type Point struct {
	ID  int
	Pos Local
}

// Bounds is an axis-aligned rectangle in local coordinates
type Bounds struct {
	MinNorthingM float64
	MinEastingM  float64
	MaxNorthingM float64
	MaxEastingM  float64
}

// BoundsAround returns the square of half-size radiusM centered on p
func BoundsAround(p Local, radiusM float64) Bounds {
	return Bounds{
		MinNorthingM: p.NorthingM - radiusM,
		MinEastingM:  p.EastingM - radiusM,
		MaxNorthingM: p.NorthingM + radiusM,
		MaxEastingM:  p.EastingM + radiusM,
	}
}

// Contains checks if a position is within bounds
func (b Bounds) Contains(p Local) bool {
	return p.NorthingM >= b.MinNorthingM && p.NorthingM <= b.MaxNorthingM &&
		p.EastingM >= b.MinEastingM && p.EastingM <= b.MaxEastingM
}

// Intersects checks if two bounds intersect
func (b Bounds) Intersects(other Bounds) bool {
	return !(b.MaxNorthingM < other.MinNorthingM || b.MinNorthingM > other.MaxNorthingM ||
		b.MaxEastingM < other.MinEastingM || b.MinEastingM > other.MaxEastingM)
}

// Width returns the east-west extent in meters
func (b Bounds) Width() float64 {
	return b.MaxEastingM - b.MinEastingM
}

// Height returns the north-south extent in meters
func (b Bounds) Height() float64 {
	return b.MaxNorthingM - b.MinNorthingM
}

// Center returns the center of the bounds
func (b Bounds) Center() Local {
	return Local{
		NorthingM: (b.MinNorthingM + b.MaxNorthingM) / 2,
		EastingM:  (b.MinEastingM + b.MaxEastingM) / 2,
	}
}

// QuadTree is a static spatial index over local positions.
// It is built once and only read afterwards, so it is safe for concurrent queries.
type QuadTree struct {
	root *node
	size int
}

// node represents a node in the QuadTree
type node struct {
	bounds Bounds
	points []Point
	depth  int

	// Child nodes (nil if leaf)
	nw *node // Northwest
	ne *node // Northeast
	sw *node // Southwest
	se *node // Southeast
}

// NewQuadTree creates an empty tree covering bounds
func NewQuadTree(bounds Bounds) *QuadTree {
	return &QuadTree{root: &node{bounds: bounds, points: make([]Point, 0, nodeCapacity)}}
}

// BuildQuadTree indexes points in a tree sized to their extent
func BuildQuadTree(points []Point) *QuadTree {
	if len(points) == 0 {
		return NewQuadTree(Bounds{})
	}
	b := Bounds{
		MinNorthingM: points[0].Pos.NorthingM, MaxNorthingM: points[0].Pos.NorthingM,
		MinEastingM: points[0].Pos.EastingM, MaxEastingM: points[0].Pos.EastingM,
	}
	for _, p := range points[1:] {
		b.MinNorthingM = min(b.MinNorthingM, p.Pos.NorthingM)
		b.MaxNorthingM = max(b.MaxNorthingM, p.Pos.NorthingM)
		b.MinEastingM = min(b.MinEastingM, p.Pos.EastingM)
		b.MaxEastingM = max(b.MaxEastingM, p.Pos.EastingM)
	}
	b.MinNorthingM -= boundsPaddingM
	b.MinEastingM -= boundsPaddingM
	b.MaxNorthingM += boundsPaddingM
	b.MaxEastingM += boundsPaddingM

	qt := NewQuadTree(b)
	for _, p := range points {
		qt.Insert(p)
	}
	return qt
}

// Insert adds a point; false if it lies outside the tree bounds
func (qt *QuadTree) Insert(p Point) bool {
	if !qt.root.bounds.Contains(p.Pos) {
		return false
	}
	qt.root.insert(p)
	qt.size++
	return true
}

// QueryBounds returns all points within bounds, ordered by id
func (qt *QuadTree) QueryBounds(bounds Bounds) []Point {
	result := qt.root.query(bounds, nil)
	sortByID(result)
	return result
}

// QueryRadius returns all points within radiusM of center, ordered by id
func (qt *QuadTree) QueryRadius(center Local, radiusM float64) []Point {
	if radiusM < 0 {
		return nil
	}
	candidates := qt.root.query(BoundsAround(center, radiusM), nil)

	// Filter by exact distance
	result := candidates[:0]
	for _, p := range candidates {
		if Distance(center, p.Pos) <= radiusM {
			result = append(result, p)
		}
	}
	sortByID(result)
	return result
}

// Size returns the number of points in the tree
func (qt *QuadTree) Size() int {
	return qt.size
}

// Bounds returns the area covered by the tree
func (qt *QuadTree) Bounds() Bounds {
	return qt.root.bounds
}

func sortByID(points []Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
}

// insert adds a point to the node
func (n *node) insert(p Point) {
	// If node has children, insert into appropriate child
	if n.nw != nil {
		n.child(p.Pos).insert(p)
		return
	}

	n.points = append(n.points, p)

	// Split if necessary
	if len(n.points) > nodeCapacity && n.shouldSplit() {
		n.split()
	}
}

// child returns the quadrant holding pos
func (n *node) child(pos Local) *node {
	center := n.bounds.Center()
	if pos.NorthingM >= center.NorthingM {
		if pos.EastingM >= center.EastingM {
			return n.ne
		}
		return n.nw
	}
	if pos.EastingM >= center.EastingM {
		return n.se
	}
	return n.sw
}

// shouldSplit checks if node should be split
func (n *node) shouldSplit() bool {
	return n.depth < maxDepth &&
		n.bounds.Width() > minNodeSizeM &&
		n.bounds.Height() > minNodeSizeM
}

// split divides the node into four children
func (n *node) split() {
	c := n.bounds.Center()
	b := n.bounds
	newChild := func(bounds Bounds) *node {
		return &node{bounds: bounds, points: make([]Point, 0, nodeCapacity), depth: n.depth + 1}
	}

	n.nw = newChild(Bounds{MinNorthingM: c.NorthingM, MinEastingM: b.MinEastingM, MaxNorthingM: b.MaxNorthingM, MaxEastingM: c.EastingM})
	n.ne = newChild(Bounds{MinNorthingM: c.NorthingM, MinEastingM: c.EastingM, MaxNorthingM: b.MaxNorthingM, MaxEastingM: b.MaxEastingM})
	n.sw = newChild(Bounds{MinNorthingM: b.MinNorthingM, MinEastingM: b.MinEastingM, MaxNorthingM: c.NorthingM, MaxEastingM: c.EastingM})
	n.se = newChild(Bounds{MinNorthingM: b.MinNorthingM, MinEastingM: c.EastingM, MaxNorthingM: c.NorthingM, MaxEastingM: b.MaxEastingM})

	// Move points to children
	old := n.points
	n.points = nil
	for _, p := range old {
		n.child(p.Pos).insert(p)
	}
}

// query appends all points within bounds to result
func (n *node) query(bounds Bounds, result []Point) []Point {
	if !n.bounds.Intersects(bounds) {
		return result
	}

	if n.nw != nil {
		result = n.nw.query(bounds, result)
		result = n.ne.query(bounds, result)
		result = n.sw.query(bounds, result)
		return n.se.query(bounds, result)
	}

	for _, p := range n.points {
		if bounds.Contains(p.Pos) {
			result = append(result, p)
		}
	}
	return result
}
