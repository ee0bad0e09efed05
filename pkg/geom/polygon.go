package geom

import (
	"errors"
	"sort"
)

// ErrDegenerate is returned when a contour has too few points or no area
var ErrDegenerate = errors.New("degenerate geometry")

// Polygon is an outer contour with optional holes
type Polygon struct {
	Outline Chain
	Holes   []Chain
}

// PolySet is a set of disjoint polygons
type PolySet []Polygon

// Bounds returns the outline bounding box
func (p Polygon) Bounds() Rect {
	return p.Outline.Bounds()
}

// Translate moves the polygon by d
func (p Polygon) Translate(d Point) Polygon {
	out := Polygon{Outline: p.Outline.Translate(d)}
	for _, h := range p.Holes {
		out.Holes = append(out.Holes, h.Translate(d))
	}
	return out
}

// Rotate rotates the polygon around center, see Point.Rotate
func (p Polygon) Rotate(center Point, angle float64) Polygon {
	if angle == 0 {
		return p
	}
	out := Polygon{Outline: p.Outline.Rotate(center, angle)}
	for _, h := range p.Holes {
		out.Holes = append(out.Holes, h.Rotate(center, angle))
	}
	return out
}

// Bounds returns the box covering every polygon of the set
func (ps PolySet) Bounds() Rect {
	r := Rect{}
	for _, p := range ps {
		r = r.Union(p.Bounds())
	}
	return r
}

// Contains reports whether pt is inside the filled area of the polygon
func (p Polygon) Contains(pt Point) bool {
	maxErr := float64(UnitsPerMM) / 1000
	if !PointInPolyline(pt, p.Outline.Polyline(maxErr)) {
		return false
	}
	for _, h := range p.Holes {
		if PointInPolyline(pt, h.Polyline(maxErr)) {
			return false
		}
	}
	return true
}

// PointInPolyline is an even-odd crossing test against a closed polyline
func PointInPolyline(pt Point, poly []Point) bool {
	inside := false
	x, y := float64(pt.X), float64(pt.Y)
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		xi, yi := float64(poly[i].X), float64(poly[i].Y)
		xj, yj := float64(poly[j].X), float64(poly[j].Y)
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// NestContours sorts closed contours into polygons: a contour lying inside an
// odd number of others is a hole of the smallest contour containing it.
func NestContours(contours []Chain) PolySet {
	type entry struct {
		chain Chain
		area  float64
		poly  []Point
		depth int
		owner int
	}
	maxErr := float64(UnitsPerMM) / 1000
	entries := make([]*entry, 0, len(contours))
	for _, c := range contours {
		poly := c.Polyline(maxErr)
		if len(poly) < 3 {
			continue
		}
		a := polygonArea(poly)
		if a < 0 {
			a = -a
		}
		entries = append(entries, &entry{chain: c, area: a, poly: poly, owner: -1})
	}

	// largest first so owners precede the contours they contain
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].area > entries[j].area })

	for i, e := range entries {
		for j := i - 1; j >= 0; j-- {
			if PointInPolyline(e.poly[0], entries[j].poly) {
				e.depth = entries[j].depth + 1
				e.owner = j
				break
			}
		}
	}

	var out PolySet
	index := make(map[int]int)
	for i, e := range entries {
		if e.depth%2 == 0 {
			index[i] = len(out)
			out = append(out, Polygon{Outline: e.chain})
		}
	}
	for _, e := range entries {
		if e.depth%2 == 1 {
			if k, ok := index[e.owner]; ok {
				out[k].Holes = append(out[k].Holes, e.chain)
			}
		}
	}
	return out
}
