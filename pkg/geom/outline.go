package geom

import (
	"errors"
	"fmt"
)

// ErrOpenContour is returned when outline edges do not close
var ErrOpenContour = errors.New("open outline contour")

// BuildOutline chains loose outline edges into closed contours and nests
// them into polygons. Endpoints closer than tol are joined. Closed edges
// (full circles) form contours on their own. Edges that cannot be closed
// are reported through an error wrapping ErrOpenContour; the contours that
// did close are still returned.
func BuildOutline(edges []Edge, tol int64) (PolySet, error) {
	var contours []Chain
	var pending []Edge
	for _, e := range edges {
		if e.IsCircle() {
			contours = append(contours, Chain{Edges: []Edge{e}})
			continue
		}
		if e.Start.Distance(e.End) == 0 {
			continue
		}
		pending = append(pending, e)
	}

	used := make([]bool, len(pending))
	near := func(a, b Point) bool { return a.Distance(b) <= float64(tol) }
	open := 0

	for i := range pending {
		if used[i] {
			continue
		}
		used[i] = true
		chain := []Edge{pending[i]}
		start := pending[i].Start

		for {
			tail := chain[len(chain)-1].End
			if len(chain) > 1 && near(tail, start) {
				break
			}
			found := false
			for j := range pending {
				if used[j] {
					continue
				}
				e := pending[j]
				switch {
				case near(e.Start, tail):
				case near(e.End, tail):
					e.Start, e.End = e.End, e.Start
				default:
					continue
				}
				e.Start = tail
				used[j] = true
				chain = append(chain, e)
				found = true
				break
			}
			if !found {
				break
			}
		}

		last := &chain[len(chain)-1]
		if !near(last.End, start) || len(chain) < 2 && last.Kind == LineEdge {
			open++
			continue
		}
		last.End = start
		contours = append(contours, Chain{Edges: chain})
	}

	polys := NestContours(contours)
	if open > 0 {
		return polys, fmt.Errorf("%w: %d contour(s) left open", ErrOpenContour, open)
	}
	return polys, nil
}
