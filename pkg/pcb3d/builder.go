package pcb3d

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// ErrKernelPanic wraps a panic raised inside the kernel while building a
// shape
var ErrKernelPanic = errors.New("kernel panic")

// Builder turns board-unit contours into kernel shapes. Coordinates are
// shifted by Origin before conversion.
type Builder struct {
	k      brep.Kernel
	origin geom.Point
	// minDist is the merge distance in board units
	minDist int64
	arcTol  geom.ArcTolerance
}

// NewBuilder returns a builder on k
func NewBuilder(k brep.Kernel, cfg Config, origin geom.Point) *Builder {
	return &Builder{k: k, origin: origin, minDist: cfg.minDistanceUnits(), arcTol: cfg.Arc}
}

// guard converts a kernel panic into an error so a single bad shape never
// unwinds the whole export
func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrKernelPanic, r)
	}
}

func (b *Builder) wire(c geom.Chain) brep.Wire {
	return brep.WireFromChain(c.Translate(geom.Point{X: -b.origin.X, Y: -b.origin.Y}))
}

// extrude makes the face at z and sweeps it by thickness. A zero thickness
// returns the face.
func (b *Builder) extrude(outer brep.Wire, holes []brep.Wire, thickness, z float64) (s brep.Shape, err error) {
	defer guard(&err)
	face, err := b.k.MakeFace(outer, holes, z)
	if err != nil {
		return nil, err
	}
	if thickness == 0 {
		return face, nil
	}
	return b.k.Extrude(face, thickness)
}

// ThickSegment builds the outline of a segment of the given width, two
// lines joined by two half circles, and extrudes it. Segments shorter than
// the merge distance become a circle.
func (b *Builder) ThickSegment(start, end geom.Point, width int64, thickness, z float64) (brep.Shape, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: segment width %d", geom.ErrDegenerate, width)
	}
	if start.Distance(end) < float64(b.minDist) {
		return b.Cylinder(start, width/2, thickness, z)
	}
	return b.extrude(b.wire(geom.ThickSegmentChain(start, end, width, b.minDist)), nil, thickness, z)
}

// ThickArc builds the outline of an arc track: two concentric arcs closed
// by round caps. Arcs too tight for their width fall back to a straight
// segment.
func (b *Builder) ThickArc(start, mid, end geom.Point, width int64, thickness, z float64) (brep.Shape, error) {
	c, ok := thickArcChain(start, mid, end, width)
	if !ok {
		return b.ThickSegment(start, end, width, thickness, z)
	}
	return b.extrude(b.wire(c), nil, thickness, z)
}

func thickArcChain(start, mid, end geom.Point, width int64) (geom.Chain, bool) {
	arc := geom.ArcThrough(start, mid, end).Arc()
	center, ok := arc.Center()
	if !ok {
		return geom.Chain{}, false
	}
	r := arc.Radius()
	hw := float64(width) / 2
	if r <= hw || start == end {
		return geom.Chain{}, false
	}

	at := func(p geom.Point, radius float64) geom.Point {
		d := r2.Unit(r2.Sub(p.Vec(), center))
		return geom.FromVec(r2.Add(center, r2.Scale(radius, d)))
	}
	// travel direction of the arc: counter-clockwise in model terms when
	// the turn from start to end through mid is positive
	ccw := r2.Cross(r2.Sub(mid.Vec(), start.Vec()), r2.Sub(end.Vec(), mid.Vec())) > 0
	tangent := func(p geom.Point) r2.Vec {
		d := r2.Unit(r2.Sub(p.Vec(), center))
		t := r2.Vec{X: -d.Y, Y: d.X}
		if !ccw {
			t = r2.Scale(-1, t)
		}
		return t
	}

	os, om, oe := at(start, r+hw), at(mid, r+hw), at(end, r+hw)
	is, im, ie := at(start, r-hw), at(mid, r-hw), at(end, r-hw)
	capEnd := geom.FromVec(r2.Add(end.Vec(), r2.Scale(hw, tangent(end))))
	capStart := geom.FromVec(r2.Sub(start.Vec(), r2.Scale(hw, tangent(start))))

	return geom.Chain{Edges: []geom.Edge{
		geom.ArcThrough(os, om, oe),
		geom.ArcThrough(oe, capEnd, ie),
		geom.ArcThrough(ie, im, is),
		geom.ArcThrough(is, capStart, os),
	}}, true
}

// Cylinder extrudes a full circle. It is the fast path for round pads,
// vias and holes.
func (b *Builder) Cylinder(center geom.Point, radius int64, thickness, z float64) (brep.Shape, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("%w: radius %d", geom.ErrDegenerate, radius)
	}
	c := center.Sub(b.origin)
	w := brep.CircleWire(r2.Vec{X: geom.ToMM(c.X), Y: -geom.ToMM(c.Y)}, geom.ToMM(radius))
	return b.extrude(w, nil, thickness, z)
}

// contourWire prepares one polygon contour: circles take the cylinder
// path, other chains optionally get their point runs replaced by arcs.
func (b *Builder) contourWire(c geom.Chain, convertToArcs bool) (brep.Wire, error) {
	if c.ArcCount() == 0 && c.PointCount() < 3 {
		return brep.Wire{}, fmt.Errorf("%w: %d points", geom.ErrDegenerate, c.PointCount())
	}
	if fit, ok := geom.DetectCircle(c, b.minDist*10); ok {
		c = geom.CircleChain(fit.Center, fit.Radius)
	} else if convertToArcs {
		c = geom.ApproximateLineChainWithArcs(c, b.arcTol)
	}
	return b.wire(c), nil
}

// PolygonToSolid builds one face from the polygon outline and its holes and
// extrudes it. A failing hole is dropped and reported through the
// returned warnings; a failing outline fails the whole polygon.
func (b *Builder) PolygonToSolid(poly geom.Polygon, thickness, z float64, convertToArcs bool) (brep.Shape, []error, error) {
	outer, err := b.contourWire(poly.Outline, convertToArcs)
	if err != nil {
		return nil, nil, fmt.Errorf("outline: %w", err)
	}
	if err := outer.Validate(geom.ToMM(b.minDist)); err != nil {
		return nil, nil, fmt.Errorf("outline: %w", err)
	}

	var warnings []error
	var holes []brep.Wire
	for i, h := range poly.Holes {
		w, err := b.contourWire(h, convertToArcs)
		if err == nil {
			err = w.Validate(geom.ToMM(b.minDist))
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("hole %d: %w", i, err))
			continue
		}
		holes = append(holes, w)
	}

	s, err := b.extrude(outer, holes, thickness, z)
	if err != nil {
		return nil, warnings, err
	}
	return s, warnings, nil
}

// PolySetToSolids converts every polygon of ps. Polygons that fail are
// reported and skipped.
func (b *Builder) PolySetToSolids(ps geom.PolySet, thickness, z float64, convertToArcs bool) ([]brep.Shape, []error) {
	var out []brep.Shape
	var errs []error
	for i, p := range ps {
		s, warn, err := b.PolygonToSolid(p, thickness, z, convertToArcs)
		errs = append(errs, warn...)
		if err != nil {
			errs = append(errs, fmt.Errorf("polygon %d: %w", i, err))
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

// degrees to radians
func rad(deg float64) float64 {
	return deg * math.Pi / 180
}
