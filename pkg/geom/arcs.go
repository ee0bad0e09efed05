package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ArcTolerance tunes ApproximateLineChainWithArcs and DetectCircle
type ArcTolerance struct {
	// MaxLengthRatio bounds |la-lb|/max(la,lb) for two consecutive segments
	MaxLengthRatio float64
	// RadiusRel and RadiusAbs bound the distance of a run point from the
	// fitted circle: max(RadiusRel*r, RadiusAbs) board units
	RadiusRel float64
	RadiusAbs float64
	// MinTurn is the smallest turn, in degrees, that still counts as curved
	MinTurn float64
	// MinRunPoints is the smallest number of points replaced by one arc
	MinRunPoints int
	// CircleSnap collapses a lone arc into a full circle when its endpoints
	// are this close
	CircleSnap int64
	// FlattenError is the chord error used when arcs are flattened for the
	// self-intersection check
	FlattenError float64
}

// DefaultArcTolerance returns the tolerances used for board outlines and
// copper polygons
func DefaultArcTolerance() ArcTolerance {
	return ArcTolerance{
		MaxLengthRatio: 0.8,
		RadiusRel:      0.02,
		RadiusAbs:      2000,
		MinTurn:        0.5,
		MinRunPoints:   4,
		CircleSnap:     UnitsPerMM,
		FlattenError:   1000,
	}
}

// maxTurnAngle is the largest turn in degrees accepted between segments of
// mean length l: 46 degrees up to 0.1 mm, 30 degrees from 1 mm, linear between.
func maxTurnAngle(l float64) float64 {
	const (
		short = 0.1 * UnitsPerMM
		long  = 1.0 * UnitsPerMM
	)
	switch {
	case l <= short:
		return 46
	case l >= long:
		return 30
	}
	return 46 - 16*(l-short)/(long-short)
}

// turnDegrees returns the signed direction change at b, in degrees
func turnDegrees(a, b, c Point) float64 {
	u := r2.Sub(b.Vec(), a.Vec())
	v := r2.Sub(c.Vec(), b.Vec())
	return math.Atan2(r2.Cross(u, v), r2.Dot(u, v)) * 180 / math.Pi
}

// tripleOK reports whether a, b, c may lie on a common arc
func (t ArcTolerance) tripleOK(a, b, c Point) bool {
	la, lb := a.Distance(b), b.Distance(c)
	if la == 0 || lb == 0 {
		return false
	}
	if math.Abs(la-lb)/math.Max(la, lb) > t.MaxLengthRatio {
		return false
	}
	turn := math.Abs(turnDegrees(a, b, c))
	return turn >= t.MinTurn && turn <= maxTurnAngle((la+lb)/2)
}

func (t ArcTolerance) radiusTol(r float64) float64 {
	return math.Max(t.RadiusRel*r, t.RadiusAbs)
}

// run is a candidate arc over pts[from..to]
type run struct {
	from, to int
	arc      Edge
}

// findRuns greedily collects arc candidates over an open point sequence
func (t ArcTolerance) findRuns(pts []Point) []run {
	var runs []run
	i := 0
	for i+2 < len(pts) {
		if !t.tripleOK(pts[i], pts[i+1], pts[i+2]) {
			i++
			continue
		}
		c, ok := circumcenter(pts[i].Vec(), pts[i+1].Vec(), pts[i+2].Vec())
		if !ok {
			i++
			continue
		}
		r := r2.Norm(r2.Sub(pts[i].Vec(), c))
		dir := math.Signbit(turnDegrees(pts[i], pts[i+1], pts[i+2]))
		pitch := pts[i].Distance(pts[i+1])
		sweep := math.Abs(turnDegrees(pts[i], pts[i+1], pts[i+2]))

		j := i + 2
		for j+1 < len(pts) {
			next := pts[j+1]
			if next == pts[i] {
				break
			}
			if !t.tripleOK(pts[j-1], pts[j], next) {
				break
			}
			turn := turnDegrees(pts[j-1], pts[j], next)
			if math.Signbit(turn) != dir {
				break
			}
			if math.Abs(r2.Norm(r2.Sub(next.Vec(), c))-r) > t.radiusTol(r) {
				break
			}
			l := pts[j].Distance(next)
			if math.Abs(l-pitch)/math.Max(l, pitch) > t.MaxLengthRatio {
				break
			}
			if sweep+math.Abs(turn) >= 359 {
				break
			}
			sweep += math.Abs(turn)
			j++
		}

		if j-i+1 < t.MinRunPoints {
			i++
			continue
		}

		arc := ArcThrough(pts[i], pts[(i+j)/2], pts[j])
		if !t.runFits(arc, pts[i:j+1]) {
			i++
			continue
		}
		runs = append(runs, run{from: i, to: j, arc: arc})
		i = j
	}
	return runs
}

// runFits checks every replaced point against the final arc
func (t ArcTolerance) runFits(arc Edge, pts []Point) bool {
	c, ok := arc.Arc().Center()
	if !ok {
		return false
	}
	r := r2.Norm(r2.Sub(arc.Start.Vec(), c))
	for _, p := range pts {
		if math.Abs(r2.Norm(r2.Sub(p.Vec(), c))-r) > t.radiusTol(r) {
			return false
		}
	}
	return true
}

// ApproximateLineChainWithArcs replaces runs of straight segments that follow
// a common circle with single arc edges. Arc edges already present are kept.
// An arc is only accepted when the resulting chain does not cross itself, so
// the physical outline is preserved. Adjacent arcs meeting at the chain start
// on the same circle are merged, and a lone arc whose endpoints are within
// CircleSnap becomes a full circle.
func ApproximateLineChainWithArcs(c Chain, tol ArcTolerance) Chain {
	if len(c.Edges) < 3 || c.IsCircle() {
		return c
	}
	if c.SelfIntersects(tol.FlattenError) {
		return c
	}

	edges := rotateForScan(c.Edges, tol)

	// split into line stretches separated by arc edges
	type stretch struct {
		pts []Point
	}
	var (
		segments []stretch
		cur      []Point
	)
	flush := func() {
		if len(cur) > 1 {
			segments = append(segments, stretch{pts: cur})
		}
		cur = nil
	}
	for _, e := range edges {
		if e.Kind == ArcEdge {
			flush()
			continue
		}
		if len(cur) == 0 {
			cur = []Point{e.Start}
		}
		cur = append(cur, e.End)
	}
	flush()

	// build the candidate output: every stretch with its runs applied
	type slot struct {
		edge  Edge
		lines []Edge // original segments when edge is an accepted run
	}
	var slots []slot
	si := 0
	for k := 0; k < len(edges); {
		e := edges[k]
		if e.Kind == ArcEdge {
			slots = append(slots, slot{edge: e})
			k++
			continue
		}
		st := segments[si]
		si++
		runs := tol.findRuns(st.pts)
		p := 0
		for _, r := range runs {
			for ; p < r.from; p++ {
				slots = append(slots, slot{edge: Line(st.pts[p], st.pts[p+1])})
			}
			var lines []Edge
			for q := r.from; q < r.to; q++ {
				lines = append(lines, Line(st.pts[q], st.pts[q+1]))
			}
			slots = append(slots, slot{edge: r.arc, lines: lines})
			p = r.to
		}
		for ; p < len(st.pts)-1; p++ {
			slots = append(slots, slot{edge: Line(st.pts[p], st.pts[p+1])})
		}
		k += len(st.pts) - 1
	}

	expand := func(accepted []bool) Chain {
		var ch Chain
		for i, s := range slots {
			if s.lines != nil && !accepted[i] {
				ch.Edges = append(ch.Edges, s.lines...)
				continue
			}
			ch.Edges = append(ch.Edges, s.edge)
		}
		return ch
	}

	accepted := make([]bool, len(slots))
	for i, s := range slots {
		if s.lines != nil {
			accepted[i] = true
		}
	}
	result := expand(accepted)
	if result.SelfIntersects(tol.FlattenError) {
		// gate each new arc on its own, earliest first
		for i := range accepted {
			accepted[i] = false
		}
		for i, s := range slots {
			if s.lines == nil {
				continue
			}
			accepted[i] = true
			if expand(accepted).SelfIntersects(tol.FlattenError) {
				accepted[i] = false
			}
		}
		result = expand(accepted)
	}
	out := rotateToStart(result.Edges, c.Edges[0].Start)
	if merged := mergeWrapArcs(out, tol); len(merged) < len(out) {
		if !(Chain{Edges: merged}).SelfIntersects(tol.FlattenError) {
			out = merged
		}
	}
	return snapCircle(Chain{Edges: out}, tol)
}

// rotateToStart rotates edges so that the chain starts at p, when some edge
// starts there
func rotateToStart(edges []Edge, p Point) []Edge {
	for k, e := range edges {
		if e.Start != p {
			continue
		}
		if k == 0 {
			return edges
		}
		out := make([]Edge, 0, len(edges))
		out = append(out, edges[k:]...)
		return append(out, edges[:k]...)
	}
	return edges
}

// rotateForScan rotates a closed edge list so that no line run wraps past
// the end: after the last arc edge when arcs exist, otherwise at a corner
// vertex where no arc can pass through.
func rotateForScan(edges []Edge, tol ArcTolerance) []Edge {
	n := len(edges)
	start := -1
	for k := n - 1; k >= 0; k-- {
		if edges[k].Kind == ArcEdge {
			start = (k + 1) % n
			break
		}
	}
	if start < 0 {
		for k := 0; k < n; k++ {
			prev := edges[(k+n-1)%n].Start
			if !tol.tripleOK(prev, edges[k].Start, edges[k].End) {
				start = k
				break
			}
		}
	}
	if start <= 0 {
		return edges
	}
	out := make([]Edge, 0, n)
	out = append(out, edges[start:]...)
	return append(out, edges[:start]...)
}

// mergeWrapArcs joins a last and first arc that continue the same circle
func mergeWrapArcs(edges []Edge, tol ArcTolerance) []Edge {
	if len(edges) < 2 {
		return edges
	}
	first, last := edges[0], edges[len(edges)-1]
	if first.Kind != ArcEdge || last.Kind != ArcEdge || first.IsCircle() || last.IsCircle() {
		return edges
	}
	fa, la := first.Arc(), last.Arc()
	fc, ok1 := fa.Center()
	lc, ok2 := la.Center()
	if !ok1 || !ok2 {
		return edges
	}
	fr, lr := fa.Radius(), la.Radius()
	if math.Abs(fr-lr) > tol.radiusTol(fr) || r2.Norm(r2.Sub(fc, lc)) > tol.radiusTol(fr) {
		return edges
	}
	if math.Signbit(fa.Sweep()) != math.Signbit(la.Sweep()) {
		return edges
	}
	if math.Abs(fa.Sweep())+math.Abs(la.Sweep()) >= 2*math.Pi {
		return edges
	}

	if last.Start == first.End {
		return CircleChain(FromVec(fc), int64(math.Round(fr))).Edges
	}
	merged := ArcThrough(last.Start, first.Start, first.End)
	out := make([]Edge, 0, len(edges)-1)
	out = append(out, merged)
	return append(out, edges[1:len(edges)-1]...)
}

// snapCircle turns a chain dominated by one near-closed arc into a circle
func snapCircle(c Chain, tol ArcTolerance) Chain {
	if c.ArcCount() != 1 {
		return c
	}
	var arc Edge
	for _, e := range c.Edges {
		if e.Kind == ArcEdge {
			arc = e
		}
	}
	if arc.Start.Distance(arc.End) > float64(tol.CircleSnap) || math.Abs(arc.Arc().Sweep()) < 1.5*math.Pi {
		return c
	}
	center, ok := arc.Arc().Center()
	if !ok {
		return c
	}
	r := int64(math.Round(arc.Arc().Radius()))
	return CircleChain(FromVec(center), r)
}

// CircleFit describes a closed chain recognised as a circle
type CircleFit struct {
	Center Point
	Radius int64
}

// DetectCircle recognises closed chains that describe a circle: either a
// single full-circle edge, or a polygon whose vertices and edge midpoints
// all lie within tol of a common circle and turn in the same direction.
// The midpoint test keeps coarse regular polygons such as octagons.
func DetectCircle(c Chain, tol int64) (CircleFit, bool) {
	if c.IsCircle() {
		center, _ := c.Edges[0].Arc().Center()
		return CircleFit{Center: FromVec(center), Radius: int64(math.Round(c.Edges[0].Arc().Radius()))}, true
	}
	if len(c.Edges) < 8 || c.ArcCount() > 0 {
		return CircleFit{}, false
	}

	pts := c.Vertices()
	var sum r2.Vec
	for _, p := range pts {
		sum = r2.Add(sum, p.Vec())
	}
	center := r2.Scale(1/float64(len(pts)), sum)

	var rsum float64
	for _, p := range pts {
		rsum += r2.Norm(r2.Sub(p.Vec(), center))
	}
	r := rsum / float64(len(pts))
	if r <= float64(tol) {
		return CircleFit{}, false
	}

	dir := 0
	for i, p := range pts {
		if math.Abs(r2.Norm(r2.Sub(p.Vec(), center))-r) > float64(tol) {
			return CircleFit{}, false
		}
		next := pts[(i+1)%len(pts)]
		mid := r2.Scale(0.5, r2.Add(p.Vec(), next.Vec()))
		if r-r2.Norm(r2.Sub(mid, center)) > float64(tol) {
			return CircleFit{}, false
		}
		o := orient(pts[(i+len(pts)-1)%len(pts)], p, next)
		if o == 0 {
			return CircleFit{}, false
		}
		if dir == 0 {
			dir = o
		} else if o != dir {
			return CircleFit{}, false
		}
	}
	return CircleFit{Center: FromVec(center), Radius: int64(math.Round(r))}, true
}
