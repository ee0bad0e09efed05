package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Chamfered corner flags, as stored in board files
const (
	ChamferTopLeft = 1 << iota
	ChamferTopRight
	ChamferBottomLeft
	ChamferBottomRight
)

// ThickSegmentChain returns the outline of a segment of the given width:
// two straight sides joined by half circles. Segments shorter than minLen
// degenerate to a circle.
func ThickSegmentChain(a, b Point, width, minLen int64) Chain {
	r := width / 2
	if a.Distance(b) < float64(minLen) {
		return CircleChain(a, r)
	}
	d := r2.Unit(r2.Sub(b.Vec(), a.Vec()))
	n := r2.Scale(float64(r), r2.Vec{X: -d.Y, Y: d.X})
	dr := r2.Scale(float64(r), d)

	a1 := FromVec(r2.Add(a.Vec(), n))
	b1 := FromVec(r2.Add(b.Vec(), n))
	b2 := FromVec(r2.Sub(b.Vec(), n))
	a2 := FromVec(r2.Sub(a.Vec(), n))
	bm := FromVec(r2.Add(b.Vec(), dr))
	am := FromVec(r2.Sub(a.Vec(), dr))

	return Chain{Edges: []Edge{
		Line(a1, b1),
		ArcThrough(b1, bm, b2),
		Line(b2, a2),
		ArcThrough(a2, am, a1),
	}}
}

// RectChain returns a rectangle centred on c, rotated by angle degrees
func RectChain(c Point, w, h int64, angle float64) Chain {
	hw, hh := w/2, h/2
	ch := NewChain([]Point{
		{c.X - hw, c.Y - hh},
		{c.X + hw, c.Y - hh},
		{c.X + hw, c.Y + hh},
		{c.X - hw, c.Y + hh},
	})
	return ch.Rotate(c, angle)
}

// RoundRectChain returns a rectangle with corners rounded to radius
func RoundRectChain(c Point, w, h, radius int64, angle float64) Chain {
	return ChamferedRectChain(c, w, h, 0, 0, radius, angle)
}

// ChamferedRectChain returns a rectangle whose flagged corners are cut by
// chamfer and whose remaining corners are rounded by radius.
func ChamferedRectChain(c Point, w, h, chamfer int64, corners int, radius int64, angle float64) Chain {
	hw, hh := w/2, h/2
	lim := min(hw, hh)
	radius = min(radius, lim)
	chamfer = min(chamfer, lim)

	type corner struct {
		p    Point
		flag int
		in   Point // unit direction towards the previous corner
		out  Point // unit direction towards the next corner
	}
	// clockwise on screen (Y down): top-left, top-right, bottom-right, bottom-left
	cs := []corner{
		{Point{c.X - hw, c.Y - hh}, ChamferTopLeft, Pt(0, 1), Pt(1, 0)},
		{Point{c.X + hw, c.Y - hh}, ChamferTopRight, Pt(-1, 0), Pt(0, 1)},
		{Point{c.X + hw, c.Y + hh}, ChamferBottomRight, Pt(0, -1), Pt(-1, 0)},
		{Point{c.X - hw, c.Y + hh}, ChamferBottomLeft, Pt(1, 0), Pt(0, -1)},
	}

	var edges []Edge
	var prevEnd Point
	var firstStart Point
	for i, k := range cs {
		var start, end Point
		var cornerEdge *Edge
		switch {
		case chamfer > 0 && corners&k.flag != 0:
			start = Point{k.p.X + k.in.X*chamfer, k.p.Y + k.in.Y*chamfer}
			end = Point{k.p.X + k.out.X*chamfer, k.p.Y + k.out.Y*chamfer}
			e := Line(start, end)
			cornerEdge = &e
		case radius > 0:
			start = Point{k.p.X + k.in.X*radius, k.p.Y + k.in.Y*radius}
			end = Point{k.p.X + k.out.X*radius, k.p.Y + k.out.Y*radius}
			center := Point{k.p.X + (k.in.X+k.out.X)*radius, k.p.Y + (k.in.Y+k.out.Y)*radius}
			off := float64(radius) / math.Sqrt2
			mid := FromVec(r2.Vec{
				X: float64(center.X) - float64(k.in.X+k.out.X)*off,
				Y: float64(center.Y) - float64(k.in.Y+k.out.Y)*off,
			})
			e := ArcThrough(start, mid, end)
			cornerEdge = &e
		default:
			start, end = k.p, k.p
		}
		if i == 0 {
			firstStart = start
		} else if prevEnd != start {
			edges = append(edges, Line(prevEnd, start))
		}
		if cornerEdge != nil && cornerEdge.Start != cornerEdge.End {
			edges = append(edges, *cornerEdge)
		}
		prevEnd = end
	}
	if prevEnd != firstStart {
		edges = append(edges, Line(prevEnd, firstStart))
	}
	return Chain{Edges: edges}.Rotate(c, angle)
}

// TrapezoidChain returns a trapezoid pad outline. delta is the rect_delta
// of the pad: delta.X narrows the shape along Y, delta.Y along X.
func TrapezoidChain(c Point, w, h int64, delta Point, angle float64) Chain {
	hx, hy := w/2, h/2
	dx, dy := delta.X/2, delta.Y/2
	ch := NewChain([]Point{
		{c.X - hx - dy, c.Y + hy + dx},
		{c.X + hx + dy, c.Y + hy - dx},
		{c.X + hx - dy, c.Y - hy + dx},
		{c.X - hx + dy, c.Y - hy - dx},
	})
	return ch.Rotate(c, angle)
}

// OvalSegment returns the centre line and width of an oval (stadium) of
// size w x h centred on c and rotated by angle. A round oval has a zero
// length segment.
func OvalSegment(c Point, w, h int64, angle float64) (a, b Point, width int64) {
	if w >= h {
		d := (w - h) / 2
		a, b, width = Point{c.X - d, c.Y}, Point{c.X + d, c.Y}, h
	} else {
		d := (h - w) / 2
		a, b, width = Point{c.X, c.Y - d}, Point{c.X, c.Y + d}, w
	}
	return a.Rotate(c, angle), b.Rotate(c, angle), width
}

// OvalChain returns the outline of an oval pad
func OvalChain(c Point, w, h int64, angle float64) Chain {
	a, b, width := OvalSegment(c, w, h, angle)
	return ThickSegmentChain(a, b, width, 1)
}
