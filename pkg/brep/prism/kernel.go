package prism

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

var (
	// ErrZeroHeight is returned when extruding by zero
	ErrZeroHeight = errors.New("zero extrusion height")
	// ErrNotAFace is returned when extruding something other than a face
	ErrNotAFace = errors.New("shape is not a planar face")
)

// Options tune the kernel
type Options struct {
	// ChordError is the maximum distance, in millimetres, between an arc
	// and the polyline replacing it
	ChordError float64
	// MinArcSegments is the segment count floor for a full circle
	MinArcSegments int
	// Tolerance is the geometric confusion distance in millimetres
	Tolerance float64
}

// DefaultOptions is a sensible setting for board-scale geometry
var DefaultOptions = Options{
	ChordError:     0.005,
	MinArcSegments: 12,
	Tolerance:      1e-6,
}

// Kernel implements brep.Kernel
type Kernel struct {
	opts Options
}

var _ brep.Kernel = (*Kernel)(nil)

// New returns a kernel, falling back to DefaultOptions for zero fields
func New(opts Options) *Kernel {
	if opts.ChordError <= 0 {
		opts.ChordError = DefaultOptions.ChordError
	}
	if opts.MinArcSegments <= 0 {
		opts.MinArcSegments = DefaultOptions.MinArcSegments
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions.Tolerance
	}
	return &Kernel{opts: opts}
}

// MakeFace flattens the wires and returns a zero-height prism at z
func (k *Kernel) MakeFace(outer brep.Wire, holes []brep.Wire, z float64) (brep.Shape, error) {
	if err := outer.Validate(k.opts.Tolerance * 100); err != nil {
		return nil, fmt.Errorf("outline: %w", err)
	}
	ring := k.flatten(outer)
	if math.Abs(signedArea(ring)) <= k.opts.Tolerance {
		return nil, fmt.Errorf("%w: outline has no area", brep.ErrInvalidWire)
	}
	p := &Prism{Outer: orient(ring, true), Z0: z, Z1: z}
	for i, h := range holes {
		if err := h.Validate(k.opts.Tolerance * 100); err != nil {
			return nil, fmt.Errorf("hole %d: %w", i, err)
		}
		hr := k.flatten(h)
		if math.Abs(signedArea(hr)) <= k.opts.Tolerance {
			continue
		}
		p.Holes = append(p.Holes, orient(hr, false))
	}
	return p, nil
}

// flatten turns a wire into a polyline ring without the closing point
func (k *Kernel) flatten(w brep.Wire) []r2.Vec {
	var ring []r2.Vec
	for _, e := range w.Edges {
		if e.Kind == brep.LineEdge {
			ring = append(ring, e.Start)
			continue
		}
		ring = append(ring, k.arcPoints(e)...)
	}
	return dedupe(ring, k.opts.Tolerance)
}

// arcPoints returns the arc from Start up to, not including, End
func (k *Kernel) arcPoints(e brep.Edge) []r2.Vec {
	full := r2.Norm(r2.Sub(e.Start, e.End)) <= k.opts.Tolerance
	var c r2.Vec
	var sweep float64
	if full {
		c = r2.Scale(0.5, r2.Add(e.Start, e.Mid))
		sweep = 2 * math.Pi
	} else {
		var ok bool
		c, ok = circumcenter(e.Start, e.Mid, e.End)
		if !ok {
			return []r2.Vec{e.Start, e.Mid}
		}
		a0 := angle(c, e.Start)
		am := normalize(angle(c, e.Mid) - a0)
		ae := normalize(angle(c, e.End) - a0)
		sweep = ae
		if am > ae {
			sweep = ae - 2*math.Pi
		}
	}
	r := r2.Norm(r2.Sub(e.Start, c))
	n := k.segments(r, math.Abs(sweep))
	if full {
		// a multiple of four keeps the ring symmetric about both axes
		n = (n + 3) / 4 * 4
	}
	a0 := angle(c, e.Start)
	out := make([]r2.Vec, 0, n)
	for i := 0; i < n; i++ {
		a := a0 + sweep*float64(i)/float64(n)
		out = append(out, r2.Vec{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
	return out
}

func (k *Kernel) segments(r, sweep float64) int {
	n := k.opts.MinArcSegments
	if r > k.opts.ChordError {
		step := 2 * math.Acos(1-k.opts.ChordError/r)
		n = max(n, int(math.Ceil(2*math.Pi/step)))
	}
	n = min(n, 360)
	return max(2, int(math.Ceil(float64(n)*sweep/(2*math.Pi))))
}

func circumcenter(a, b, c r2.Vec) (r2.Vec, bool) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		return r2.Vec{}, false
	}
	a2, b2, c2 := r2.Norm2(a), r2.Norm2(b), r2.Norm2(c)
	return r2.Vec{
		X: (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d,
		Y: (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d,
	}, true
}

func angle(c, p r2.Vec) float64 {
	return math.Atan2(p.Y-c.Y, p.X-c.X)
}

func normalize(a float64) float64 {
	for a < 0 {
		a += 2 * math.Pi
	}
	for a >= 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func dedupe(ring []r2.Vec, tol float64) []r2.Vec {
	out := ring[:0:0]
	for _, p := range ring {
		if len(out) > 0 && r2.Norm(r2.Sub(out[len(out)-1], p)) <= tol {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && r2.Norm(r2.Sub(out[0], out[len(out)-1])) <= tol {
		out = out[:len(out)-1]
	}
	return out
}

// Extrude sweeps a face along Z
func (k *Kernel) Extrude(face brep.Shape, height float64) (brep.Shape, error) {
	p, ok := face.(*Prism)
	if !ok || !p.IsFace() {
		return nil, ErrNotAFace
	}
	if math.Abs(height) <= k.opts.Tolerance {
		return nil, ErrZeroHeight
	}
	s := p.clone()
	s.Z0, s.Z1 = p.Z0, p.Z0+height
	if s.Z1 < s.Z0 {
		s.Z0, s.Z1 = s.Z1, s.Z0
	}
	return s, nil
}

// Compound groups shapes
func (k *Kernel) Compound(shapes []brep.Shape) brep.Shape {
	return &Compound{Children: append([]brep.Shape(nil), shapes...)}
}

// Transform places s. Identity transforms return s itself.
func (k *Kernel) Transform(s brep.Shape, m mgl64.Mat4) brep.Shape {
	if m.ApproxEqual(mgl64.Ident4()) {
		return s
	}
	if l, ok := s.(*Located); ok {
		return &Located{Shape: l.Shape, Location: m.Mul4(l.Location)}
	}
	return &Located{Shape: s, Location: m}
}

// Bounds returns the world bounding box of s
func (k *Kernel) Bounds(s brep.Shape) brep.Box {
	b := brep.EmptyBox()
	for _, f := range k.facets(s, mgl64.Ident4()) {
		for _, p := range f.Outer {
			b = brep.Enlarge(b, r3.Vec{X: p.X(), Y: p.Y(), Z: p.Z()})
		}
	}
	return b
}

// facets lists the faces of s in world coordinates
func (k *Kernel) facets(s brep.Shape, m mgl64.Mat4) []*Facet {
	var out []*Facet
	switch v := s.(type) {
	case *Prism:
		for _, f := range v.facets() {
			out = append(out, f.transform(m))
		}
	case *Polyhedron:
		for _, f := range v.Faces {
			out = append(out, f.transform(m))
		}
	case *Facet:
		out = append(out, v.transform(m))
	case *Compound:
		for _, c := range v.Children {
			out = append(out, k.facets(c, m)...)
		}
	case *Located:
		out = append(out, k.facets(v.Shape, m.Mul4(v.Location))...)
	}
	return out
}

// solids lists the solids and lone faces of s with their placement
func (k *Kernel) solids(s brep.Shape, m mgl64.Mat4, visit func(brep.Shape, mgl64.Mat4)) {
	switch v := s.(type) {
	case *Compound:
		for _, c := range v.Children {
			k.solids(c, m, visit)
		}
	case *Located:
		k.solids(v.Shape, m.Mul4(v.Location), visit)
	case nil:
	default:
		visit(s, m)
	}
}

// facets returns the bottom, top and side faces of the prism, or the
// single face of a flat one
func (p *Prism) facets() []*Facet {
	lift := func(loop []r2.Vec, z float64) []mgl64.Vec3 {
		out := make([]mgl64.Vec3, len(loop))
		for i, q := range loop {
			out[i] = mgl64.Vec3{q.X, q.Y, z}
		}
		return out
	}
	if p.IsFace() {
		f := &Facet{Outer: lift(p.Outer, p.Z0)}
		for _, h := range p.Holes {
			f.Holes = append(f.Holes, lift(h, p.Z0))
		}
		return []*Facet{f}
	}

	bottom := &Facet{Outer: lift(reversed(p.Outer), p.Z0)}
	top := &Facet{Outer: lift(p.Outer, p.Z1)}
	for _, h := range p.Holes {
		bottom.Holes = append(bottom.Holes, lift(reversed(h), p.Z0))
		top.Holes = append(top.Holes, lift(h, p.Z1))
	}
	out := []*Facet{bottom, top}
	side := func(loop []r2.Vec) {
		for i, a := range loop {
			b := loop[(i+1)%len(loop)]
			out = append(out, &Facet{Outer: []mgl64.Vec3{
				{a.X, a.Y, p.Z0}, {b.X, b.Y, p.Z0}, {b.X, b.Y, p.Z1}, {a.X, a.Y, p.Z1},
			}})
		}
	}
	side(p.Outer)
	for _, h := range p.Holes {
		side(h)
	}
	return out
}
