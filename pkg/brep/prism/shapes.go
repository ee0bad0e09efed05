// Package prism is a 2.5D reference kernel for pkg/brep.
//
// Every solid it builds is a straight prism: a planar polygon with holes
// swept along Z. Arcs are flattened to polylines when a wire becomes a
// face. Boolean operations run in the XY plane with polyclip and only
// apply between prisms whose heights are compatible; anything else is
// kept unevaluated and reported as a warning. Shapes read from STEP files
// are kept as faceted polyhedra that can be placed and written back but
// not cut.
package prism

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Prism is a polygon with holes between heights Z0 and Z1. A prism with
// Z0 == Z1 is a planar face. The outline is counter-clockwise and holes
// are clockwise.
type Prism struct {
	Outer []r2.Vec
	Holes [][]r2.Vec
	Z0    float64
	Z1    float64

	// residual holds tools a cut could not apply
	residual []*Prism
}

func (p *Prism) Kind() brep.ShapeKind {
	if p.Z0 == p.Z1 {
		return brep.KindFace
	}
	return brep.KindSolid
}

// IsFace reports whether the prism has no height
func (p *Prism) IsFace() bool {
	return p.Z0 == p.Z1
}

// Residual returns the tools a cut left unevaluated
func (p *Prism) Residual() int {
	return len(p.residual)
}

func (p *Prism) bounds2() (r2.Vec, r2.Vec) {
	return bounds2(p.Outer)
}

func (p *Prism) clone() *Prism {
	c := &Prism{Outer: p.Outer, Z0: p.Z0, Z1: p.Z1}
	c.Holes = append([][]r2.Vec(nil), p.Holes...)
	c.residual = append([]*Prism(nil), p.residual...)
	return c
}

// Polyhedron is a faceted solid in world coordinates
type Polyhedron struct {
	Faces []*Facet
}

func (p *Polyhedron) Kind() brep.ShapeKind { return brep.KindSolid }

// Facet is a planar polygon in 3D with optional holes
type Facet struct {
	Outer []mgl64.Vec3
	Holes [][]mgl64.Vec3
}

func (f *Facet) Kind() brep.ShapeKind { return brep.KindFace }

// Normal returns the unit normal of the outer loop (Newell's method)
func (f *Facet) Normal() mgl64.Vec3 {
	var n mgl64.Vec3
	for i, a := range f.Outer {
		b := f.Outer[(i+1)%len(f.Outer)]
		n[0] += (a.Y() - b.Y()) * (a.Z() + b.Z())
		n[1] += (a.Z() - b.Z()) * (a.X() + b.X())
		n[2] += (a.X() - b.X()) * (a.Y() + b.Y())
	}
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl64.Vec3{0, 0, 1}
}

func (f *Facet) transform(m mgl64.Mat4) *Facet {
	out := &Facet{Outer: transformLoop(f.Outer, m)}
	for _, h := range f.Holes {
		out.Holes = append(out.Holes, transformLoop(h, m))
	}
	return out
}

func transformLoop(loop []mgl64.Vec3, m mgl64.Mat4) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(loop))
	for i, p := range loop {
		out[i] = m.Mul4x1(p.Vec4(1)).Vec3()
	}
	return out
}

// Compound groups shapes
type Compound struct {
	Children []brep.Shape
}

func (c *Compound) Kind() brep.ShapeKind { return brep.KindCompound }

// Located is a shape placed by an affine transform
type Located struct {
	Shape    brep.Shape
	Location mgl64.Mat4
}

func (l *Located) Kind() brep.ShapeKind { return l.Shape.Kind() }

// flatten expands compounds into their leaves
func flatten(shapes []brep.Shape) []brep.Shape {
	var out []brep.Shape
	for _, s := range shapes {
		if c, ok := s.(*Compound); ok {
			out = append(out, flatten(c.Children)...)
			continue
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func bounds2(pts []r2.Vec) (r2.Vec, r2.Vec) {
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range pts {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

func boxesOverlap(alo, ahi, blo, bhi r2.Vec) bool {
	return alo.X <= bhi.X && blo.X <= ahi.X && alo.Y <= bhi.Y && blo.Y <= ahi.Y
}

func boxInside(lo, hi, olo, ohi r2.Vec) bool {
	return lo.X >= olo.X && lo.Y >= olo.Y && hi.X <= ohi.X && hi.Y <= ohi.Y
}

func signedArea(pts []r2.Vec) float64 {
	a := 0.0
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func reversed(pts []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// orient returns pts wound counter-clockwise when ccw is set, clockwise
// otherwise
func orient(pts []r2.Vec, ccw bool) []r2.Vec {
	if (signedArea(pts) > 0) != ccw {
		return reversed(pts)
	}
	return pts
}

// insidePolygon is an even-odd point in polygon test
func insidePolygon(p r2.Vec, poly []r2.Vec) bool {
	in := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
		j = i
	}
	return in
}

func segmentsCross(a, b, c, d r2.Vec) bool {
	d1 := r2.Cross(r2.Sub(b, a), r2.Sub(c, a))
	d2 := r2.Cross(r2.Sub(b, a), r2.Sub(d, a))
	d3 := r2.Cross(r2.Sub(d, c), r2.Sub(a, c))
	d4 := r2.Cross(r2.Sub(d, c), r2.Sub(b, c))
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// loopsCross reports whether any edge of a properly crosses an edge of b
func loopsCross(a, b []r2.Vec) bool {
	for i := range a {
		p, q := a[i], a[(i+1)%len(a)]
		plo, phi := bounds2([]r2.Vec{p, q})
		for j := range b {
			r, s := b[j], b[(j+1)%len(b)]
			rlo, rhi := bounds2([]r2.Vec{r, s})
			if !boxesOverlap(plo, phi, rlo, rhi) {
				continue
			}
			if segmentsCross(p, q, r, s) {
				return true
			}
		}
	}
	return false
}
