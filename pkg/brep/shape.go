// Package brep defines the boundary-representation kernel the 3D exporter
// drives, together with the kernel-neutral data it exchanges with it:
// planar wires, opaque shapes, bounding boxes, boolean reports and the
// labelled assembly document written to STEP, IGES and glTF.
//
// The exporter never inspects a Shape. It builds faces from wires,
// extrudes them, combines them with boolean operations and hands the
// result to the writers, all through the Kernel interface. pkg/brep/prism
// provides the reference implementation.
package brep

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// ErrInvalidWire is returned for wires the kernel cannot close into a face
var ErrInvalidWire = errors.New("invalid wire")

// ShapeKind is the topological type of a shape
type ShapeKind int

const (
	KindVertex ShapeKind = iota
	KindEdge
	KindFace
	KindShell
	KindSolid
	KindCompound
)

func (k ShapeKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	case KindFace:
		return "face"
	case KindShell:
		return "shell"
	case KindSolid:
		return "solid"
	case KindCompound:
		return "compound"
	}
	return "unknown"
}

// Shape is an opaque kernel handle. A Shape is owned by whoever holds it:
// builders hand shapes over to buckets and keep no reference.
type Shape interface {
	Kind() ShapeKind
}

// EdgeKind tells straight wire edges from circular ones
type EdgeKind int

const (
	LineEdge EdgeKind = iota
	ArcEdge
)

// Edge is one wire edge in millimetres. Arcs run through Mid; an arc whose
// Start equals End is a full circle with Mid diametrically opposite.
type Edge struct {
	Kind  EdgeKind
	Start r2.Vec
	Mid   r2.Vec
	End   r2.Vec
}

// Wire is a closed planar contour in millimetres
type Wire struct {
	Edges []Edge
}

// WireFromChain converts a board-unit chain into a millimetre wire. Y is
// flipped: board Y grows downwards, model Y upwards.
func WireFromChain(c geom.Chain) Wire {
	conv := func(p geom.Point) r2.Vec {
		return r2.Vec{X: geom.ToMM(p.X), Y: -geom.ToMM(p.Y)}
	}
	w := Wire{Edges: make([]Edge, len(c.Edges))}
	for i, e := range c.Edges {
		kind := LineEdge
		if e.Kind == geom.ArcEdge {
			kind = ArcEdge
		}
		w.Edges[i] = Edge{Kind: kind, Start: conv(e.Start), Mid: conv(e.Mid), End: conv(e.End)}
	}
	return w
}

// CircleWire returns a full circle wire
func CircleWire(center r2.Vec, radius float64) Wire {
	s := r2.Vec{X: center.X + radius, Y: center.Y}
	m := r2.Vec{X: center.X - radius, Y: center.Y}
	return Wire{Edges: []Edge{{Kind: ArcEdge, Start: s, Mid: m, End: s}}}
}

// Validate checks that consecutive edges meet within tol and the wire
// closes
func (w Wire) Validate(tol float64) error {
	if len(w.Edges) == 0 {
		return fmt.Errorf("%w: no edges", ErrInvalidWire)
	}
	if len(w.Edges) == 1 {
		e := w.Edges[0]
		if e.Kind != ArcEdge || r2.Norm(r2.Sub(e.Start, e.End)) > tol {
			return fmt.Errorf("%w: single edge does not close", ErrInvalidWire)
		}
		return nil
	}
	if len(w.Edges) < 3 && w.Edges[0].Kind == LineEdge && w.Edges[1].Kind == LineEdge {
		return fmt.Errorf("%w: %d line edges cannot bound a face", ErrInvalidWire, len(w.Edges))
	}
	for i, e := range w.Edges {
		next := w.Edges[(i+1)%len(w.Edges)]
		if r2.Norm(r2.Sub(e.End, next.Start)) > tol {
			return fmt.Errorf("%w: gap of %g mm after edge %d", ErrInvalidWire, r2.Norm(r2.Sub(e.End, next.Start)), i)
		}
		if e.Kind == LineEdge && r2.Norm(r2.Sub(e.Start, e.End)) <= tol {
			return fmt.Errorf("%w: edge %d is shorter than %g mm", ErrInvalidWire, i, tol)
		}
	}
	return nil
}

// Box is an axis-aligned bounding box in millimetres
type Box = r3.Box

// EmptyBox returns a box that any Enlarge call replaces
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{Min: r3.Vec{X: inf, Y: inf, Z: inf}, Max: r3.Vec{X: -inf, Y: -inf, Z: -inf}}
}

// IsVoid reports whether b was never enlarged
func IsVoid(b Box) bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Enlarge grows b to contain p
func Enlarge(b Box, p r3.Vec) Box {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	return b
}

// Merge returns the box covering a and b
func Merge(a, b Box) Box {
	if IsVoid(a) {
		return b
	}
	if IsVoid(b) {
		return a
	}
	return Enlarge(Enlarge(a, b.Min), b.Max)
}

// Overlaps reports whether the boxes share any point
func Overlaps(a, b Box) bool {
	if IsVoid(a) || IsVoid(b) {
		return false
	}
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// FormatBox renders a box for log messages
func FormatBox(b Box) string {
	if IsVoid(b) {
		return "(void)"
	}
	return fmt.Sprintf("(%.3f, %.3f, %.3f)-(%.3f, %.3f, %.3f)", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// Report collects the diagnostics of a boolean operation. A report with
// errors still comes with a usable, possibly degraded, result.
type Report struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the operation ran clean
func (r Report) OK() bool {
	return len(r.Errors) == 0 && len(r.Warnings) == 0
}

func (r *Report) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge appends the diagnostics of o
func (r *Report) Merge(o Report) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

func (r Report) String() string {
	var b strings.Builder
	for _, e := range r.Errors {
		b.WriteString("error: " + e + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("warning: " + w + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
