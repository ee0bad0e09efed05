package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// EdgeKind tells a straight edge from a circular one
type EdgeKind uint8

const (
	LineEdge EdgeKind = iota
	ArcEdge
)

func (k EdgeKind) String() string {
	if k == ArcEdge {
		return "arc"
	}
	return "line"
}

// Edge is one piece of a contour. Arcs pass through Mid. An arc whose Start
// equals its End is a full circle with Mid diametrically opposite.
type Edge struct {
	Kind  EdgeKind
	Start Point
	Mid   Point
	End   Point
}

// Line returns a straight edge
func Line(a, b Point) Edge {
	return Edge{Kind: LineEdge, Start: a, End: b}
}

// ArcThrough returns a three-point arc edge
func ArcThrough(start, mid, end Point) Edge {
	return Edge{Kind: ArcEdge, Start: start, Mid: mid, End: end}
}

// Circle returns a full circle edge starting at angle zero
func Circle(center Point, radius int64) Edge {
	s := Point{center.X + radius, center.Y}
	return Edge{Kind: ArcEdge, Start: s, Mid: Point{center.X - radius, center.Y}, End: s}
}

// IsCircle reports whether the edge is a closed circle
func (e Edge) IsCircle() bool {
	return e.Kind == ArcEdge && e.Start == e.End
}

// Arc returns the circular description of an arc edge
func (e Edge) Arc() Arc {
	return Arc{Start: e.Start, Mid: e.Mid, End: e.End}
}

// Length returns the edge length in board units
func (e Edge) Length() float64 {
	if e.Kind == LineEdge {
		return e.Start.Distance(e.End)
	}
	a := e.Arc()
	return math.Abs(a.Sweep()) * a.Radius()
}

// Arc is a circular arc given by three points on it
type Arc struct {
	Start, Mid, End Point
}

// Center returns the circle centre. ok is false for collinear points.
func (a Arc) Center() (c r2.Vec, ok bool) {
	if a.Start == a.End {
		return r2.Scale(0.5, r2.Add(a.Start.Vec(), a.Mid.Vec())), true
	}
	return circumcenter(a.Start.Vec(), a.Mid.Vec(), a.End.Vec())
}

// Radius returns the circle radius, or +Inf for degenerate arcs
func (a Arc) Radius() float64 {
	c, ok := a.Center()
	if !ok {
		return math.Inf(1)
	}
	return r2.Norm(r2.Sub(a.Start.Vec(), c))
}

// Sweep returns the signed angle in radians travelled from Start to End
// through Mid. Positive is counter-clockwise in the math frame.
func (a Arc) Sweep() float64 {
	c, ok := a.Center()
	if !ok {
		return 0
	}
	ccw := r2.Cross(r2.Sub(a.Mid.Vec(), a.Start.Vec()), r2.Sub(a.End.Vec(), a.Mid.Vec())) > 0
	if a.Start == a.End {
		// orientation of a full circle cannot be recovered from three points
		return 2 * math.Pi
	}
	a0 := angleOf(r2.Sub(a.Start.Vec(), c))
	a1 := angleOf(r2.Sub(a.End.Vec(), c))
	if ccw {
		return normAngle(a1 - a0)
	}
	return -normAngle(a0 - a1)
}

// Polyline returns points along the arc from Start to End inclusive, with a
// chord error of at most maxErr board units.
func (a Arc) Polyline(maxErr float64) []Point {
	c, ok := a.Center()
	if !ok {
		return []Point{a.Start, a.End}
	}
	r := r2.Norm(r2.Sub(a.Start.Vec(), c))
	sweep := a.Sweep()
	n := segmentsFor(r, math.Abs(sweep), maxErr)
	a0 := angleOf(r2.Sub(a.Start.Vec(), c))
	pts := make([]Point, 0, n+1)
	pts = append(pts, a.Start)
	for i := 1; i < n; i++ {
		t := a0 + sweep*float64(i)/float64(n)
		pts = append(pts, FromVec(r2.Vec{X: c.X + r*math.Cos(t), Y: c.Y + r*math.Sin(t)}))
	}
	return append(pts, a.End)
}

// segmentsFor returns how many chords keep the sagitta below maxErr
func segmentsFor(radius, sweep, maxErr float64) int {
	if maxErr <= 0 || radius <= maxErr {
		return max(2, int(math.Ceil(sweep/(math.Pi/4))))
	}
	step := 2 * math.Acos(1-maxErr/radius)
	n := int(math.Ceil(sweep / step))
	return max(n, 2)
}

func circumcenter(a, b, c r2.Vec) (r2.Vec, bool) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-9 {
		return r2.Vec{}, false
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	return r2.Vec{
		X: (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d,
		Y: (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d,
	}, true
}

func angleOf(v r2.Vec) float64 {
	return math.Atan2(v.Y, v.X)
}

// normAngle maps an angle into (0, 2pi]
func normAngle(a float64) float64 {
	for a <= 0 {
		a += 2 * math.Pi
	}
	for a > 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Chain is a closed contour made of line and arc edges. Consecutive edges
// share endpoints and the last edge ends where the first one starts.
type Chain struct {
	Edges []Edge
}

// NewChain builds a closed polyline chain from vertices. Repeated points and
// an explicit closing point are dropped.
func NewChain(pts []Point) Chain {
	clean := make([]Point, 0, len(pts))
	for _, p := range pts {
		if len(clean) > 0 && clean[len(clean)-1] == p {
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) > 1 && clean[0] == clean[len(clean)-1] {
		clean = clean[:len(clean)-1]
	}

	c := Chain{Edges: make([]Edge, 0, len(clean))}
	for i := range clean {
		c.Edges = append(c.Edges, Line(clean[i], clean[(i+1)%len(clean)]))
	}
	return c
}

// CircleChain returns a chain holding a single full circle
func CircleChain(center Point, radius int64) Chain {
	return Chain{Edges: []Edge{Circle(center, radius)}}
}

// PointCount returns the number of distinct vertices
func (c Chain) PointCount() int { return len(c.Edges) }

// ArcCount returns the number of arc edges
func (c Chain) ArcCount() int {
	n := 0
	for _, e := range c.Edges {
		if e.Kind == ArcEdge {
			n++
		}
	}
	return n
}

// Vertices returns the start point of every edge
func (c Chain) Vertices() []Point {
	pts := make([]Point, len(c.Edges))
	for i, e := range c.Edges {
		pts[i] = e.Start
	}
	return pts
}

// IsCircle reports whether the chain is a single full circle
func (c Chain) IsCircle() bool {
	return len(c.Edges) == 1 && c.Edges[0].IsCircle()
}

// Polyline returns the chain flattened to vertices, arcs split so that the
// chord error stays below maxErr. The closing point is not repeated.
func (c Chain) Polyline(maxErr float64) []Point {
	var pts []Point
	for _, e := range c.Edges {
		if e.Kind == LineEdge {
			pts = append(pts, e.Start)
			continue
		}
		arc := e.Arc()
		if e.IsCircle() {
			cv, _ := arc.Center()
			r := r2.Norm(r2.Sub(e.Start.Vec(), cv))
			n := segmentsFor(r, 2*math.Pi, maxErr)
			for i := 0; i < n; i++ {
				t := 2 * math.Pi * float64(i) / float64(n)
				pts = append(pts, FromVec(r2.Vec{X: cv.X + r*math.Cos(t), Y: cv.Y + r*math.Sin(t)}))
			}
			continue
		}
		seg := arc.Polyline(maxErr)
		pts = append(pts, seg[:len(seg)-1]...)
	}
	return dedupe(pts)
}

// dedupe drops consecutive repeated points, the wrap-around pair included
func dedupe(pts []Point) []Point {
	out := pts[:0]
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// Bounds returns the chain bounding box, arcs included
func (c Chain) Bounds() Rect {
	return BoundsOf(c.Polyline(float64(UnitsPerMM) / 1000))
}

// SignedArea returns the polyline area in square board units, positive for
// counter-clockwise contours in the math frame.
func (c Chain) SignedArea() float64 {
	return polygonArea(c.Polyline(float64(UnitsPerMM) / 1000))
}

// Reverse returns the chain traversed in the opposite direction
func (c Chain) Reverse() Chain {
	out := Chain{Edges: make([]Edge, len(c.Edges))}
	for i, e := range c.Edges {
		e.Start, e.End = e.End, e.Start
		out.Edges[len(c.Edges)-1-i] = e
	}
	return out
}

// Translate moves every edge by d
func (c Chain) Translate(d Point) Chain {
	out := Chain{Edges: make([]Edge, len(c.Edges))}
	for i, e := range c.Edges {
		out.Edges[i] = Edge{Kind: e.Kind, Start: e.Start.Add(d), Mid: e.Mid.Add(d), End: e.End.Add(d)}
	}
	return out
}

// Rotate rotates every edge around center, see Point.Rotate
func (c Chain) Rotate(center Point, angle float64) Chain {
	out := Chain{Edges: make([]Edge, len(c.Edges))}
	for i, e := range c.Edges {
		out.Edges[i] = Edge{
			Kind:  e.Kind,
			Start: e.Start.Rotate(center, angle),
			Mid:   e.Mid.Rotate(center, angle),
			End:   e.End.Rotate(center, angle),
		}
	}
	return out
}

func polygonArea(pts []Point) float64 {
	var a float64
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		a += float64(p.X)*float64(q.Y) - float64(q.X)*float64(p.Y)
	}
	return a / 2
}
