package geom

// segmentsIntersect reports whether segments a1-a2 and b1-b2 share a point
func segmentsIntersect(a1, a2, b1, b2 Point) bool {
	d1 := orient(b1, b2, a1)
	d2 := orient(b1, b2, a2)
	d3 := orient(a1, a2, b1)
	d4 := orient(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(b1, b2, a1):
		return true
	case d2 == 0 && onSegment(b1, b2, a2):
		return true
	case d3 == 0 && onSegment(a1, a2, b1):
		return true
	case d4 == 0 && onSegment(a1, a2, b2):
		return true
	}
	return false
}

func orient(a, b, c Point) int {
	v := float64(b.X-a.X)*float64(c.Y-a.Y) - float64(b.Y-a.Y)*float64(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(a, b, p Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

// polylineSelfIntersects checks a closed polyline for crossings between
// non-adjacent segments
func polylineSelfIntersects(pts []Point) bool {
	n := len(pts)
	if n < 4 {
		return false
	}
	boxes := make([]Rect, n)
	for i := range pts {
		boxes[i] = NewRect(pts[i], pts[(i+1)%n])
	}
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if !boxes[i].Intersects(boxes[j]) {
				continue
			}
			if segmentsIntersect(pts[i], pts[(i+1)%n], pts[j], pts[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

// SelfIntersects reports whether the chain crosses itself. Arcs are
// flattened with a chord error of maxErr board units first.
func (c Chain) SelfIntersects(maxErr float64) bool {
	if c.IsCircle() {
		return false
	}
	return polylineSelfIntersects(c.Polyline(maxErr))
}
