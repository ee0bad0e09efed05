// Package geom holds the integer 2D geometry that describes board artwork
// before it is handed to a solid modelling kernel.
//
// All coordinates are board units (nanometres) stored as int64, matching the
// resolution of the KiCad file format. Floating point is only used for
// intermediate math (circle fitting, angles) through gonum's r2 vectors.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Board unit conversions
const (
	UnitsPerMM = 1_000_000
	MMPerUnit  = 1.0 / UnitsPerMM
)

// FromMM converts millimetres to board units, rounding to the nearest unit
func FromMM(mm float64) int64 {
	return int64(math.Round(mm * UnitsPerMM))
}

// ToMM converts board units to millimetres
func ToMM(v int64) float64 {
	return float64(v) * MMPerUnit
}

// Point is a position in board units
type Point struct {
	X, Y int64
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y int64) Point {
	return Point{X: x, Y: y}
}

// PtMM builds a Point from millimetre coordinates
func PtMM(x, y float64) Point {
	return Point{X: FromMM(x), Y: FromMM(y)}
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Vec returns the point as a float vector
func (p Point) Vec() r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

// FromVec rounds a float vector to the nearest board unit
func FromVec(v r2.Vec) Point {
	return Point{X: int64(math.Round(v.X)), Y: int64(math.Round(v.Y))}
}

// Distance returns the euclidean distance between p and q
func (p Point) Distance(q Point) float64 {
	return r2.Norm(r2.Sub(p.Vec(), q.Vec()))
}

// Rotate rotates p around center by angle degrees, counter-clockwise as seen
// on the board. Board Y grows downward, so this is a negative rotation in the
// usual Y-up frame.
func (p Point) Rotate(center Point, angle float64) Point {
	if angle == 0 {
		return p
	}
	rot := r2.NewRotation(-angle*math.Pi/180, center.Vec())
	return FromVec(rot.Rotate(p.Vec()))
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", ToMM(p.X), ToMM(p.Y))
}

// Rect is an axis-aligned box in board units. The zero Rect is empty.
type Rect struct {
	Min, Max Point
	valid    bool
}

// NewRect returns the box spanning a and b
func NewRect(a, b Point) Rect {
	r := Rect{}
	r.Merge(a)
	r.Merge(b)
	return r
}

// BoundsOf returns the bounding box of pts
func BoundsOf(pts []Point) Rect {
	r := Rect{}
	for _, p := range pts {
		r.Merge(p)
	}
	return r
}

// Empty reports whether the box holds no points
func (r Rect) Empty() bool { return !r.valid }

// Merge grows the box to include p
func (r *Rect) Merge(p Point) {
	if !r.valid {
		r.Min, r.Max, r.valid = p, p, true
		return
	}
	r.Min.X = min(r.Min.X, p.X)
	r.Min.Y = min(r.Min.Y, p.Y)
	r.Max.X = max(r.Max.X, p.X)
	r.Max.Y = max(r.Max.Y, p.Y)
}

// Union returns the box covering both r and o
func (r Rect) Union(o Rect) Rect {
	if !o.valid {
		return r
	}
	if !r.valid {
		return o
	}
	r.Merge(o.Min)
	r.Merge(o.Max)
	return r
}

// Inflate grows the box by d on every side
func (r Rect) Inflate(d int64) Rect {
	if !r.valid {
		return r
	}
	r.Min = r.Min.Sub(Pt(d, d))
	r.Max = r.Max.Add(Pt(d, d))
	return r
}

// Intersects reports whether the boxes overlap (touching counts)
func (r Rect) Intersects(o Rect) bool {
	if !r.valid || !o.valid {
		return false
	}
	return r.Min.X <= o.Max.X && o.Min.X <= r.Max.X &&
		r.Min.Y <= o.Max.Y && o.Min.Y <= r.Max.Y
}

// Contains reports whether p lies inside or on the box
func (r Rect) Contains(p Point) bool {
	return r.valid && p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

func (r Rect) Width() int64  { return r.Max.X - r.Min.X }
func (r Rect) Height() int64 { return r.Max.Y - r.Min.Y }

// Center returns the midpoint of the box
func (r Rect) Center() Point {
	return Point{(r.Min.X + r.Max.X) / 2, (r.Min.Y + r.Max.Y) / 2}
}
