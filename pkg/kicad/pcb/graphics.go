package pcb

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// parseDrawing reads a gr_* or fp_* graphic item. The returned edges trace
// the item's geometry exactly (arcs kept) and are used for Edge.Cuts.
//
// Expected formats:
//
//	(gr_line (start x y) (end x y) (stroke (width w) (type solid)) (layer "Edge.Cuts"))
//	(gr_arc (start x y) (mid x y) (end x y) ...)
//	(gr_circle (center x y) (end x y) (fill none) ...)
//	(gr_rect (start x y) (end x y) ...)
//	(gr_poly (pts (xy x y) ... (arc (start) (mid) (end))) ...)
func parseDrawing(n *kicadsexp.List) (board.Drawing, []geom.Edge, error) {
	layer, err := layerOf(n)
	if err != nil {
		return board.Drawing{}, nil, err
	}
	width, err := strokeWidth(n)
	if err != nil {
		return board.Drawing{}, nil, err
	}
	d := board.Drawing{Layer: layer, Width: width, Filled: filled(n)}
	return readShape(n, d)
}

// readShape fills the geometry of d from a graphic item or a custom pad
// primitive
func readShape(n *kicadsexp.List, d board.Drawing) (board.Drawing, []geom.Edge, error) {
	var err error
	kind := strings.TrimPrefix(strings.TrimPrefix(n.Key(), "gr_"), "fp_")
	switch kind {
	case "line":
		d.Shape = board.DrawSegment
		if d.Start, err = childPoint(n, "start"); err != nil {
			return d, nil, err
		}
		if d.End, err = childPoint(n, "end"); err != nil {
			return d, nil, err
		}
		return d, []geom.Edge{geom.Line(d.Start, d.End)}, nil

	case "arc":
		d.Shape = board.DrawArc
		if d.Start, err = childPoint(n, "start"); err != nil {
			return d, nil, err
		}
		if d.Mid, err = childPoint(n, "mid"); err != nil {
			return d, nil, err
		}
		if d.End, err = childPoint(n, "end"); err != nil {
			return d, nil, err
		}
		return d, []geom.Edge{geom.ArcThrough(d.Start, d.Mid, d.End)}, nil

	case "circle":
		d.Shape = board.DrawCircle
		if d.Start, err = childPoint(n, "center"); err != nil {
			return d, nil, err
		}
		if d.End, err = childPoint(n, "end"); err != nil {
			return d, nil, err
		}
		r := int64(d.Start.Distance(d.End))
		if r == 0 {
			return d, nil, fmt.Errorf("line %d: zero radius circle: %w", n.Line, geom.ErrDegenerate)
		}
		return d, []geom.Edge{geom.Circle(d.Start, r)}, nil

	case "rect":
		d.Shape = board.DrawRect
		if d.Start, err = childPoint(n, "start"); err != nil {
			return d, nil, err
		}
		if d.End, err = childPoint(n, "end"); err != nil {
			return d, nil, err
		}
		return d, rectEdges(d.Start, d.End), nil

	case "poly":
		d.Shape = board.DrawPoly
		pts, ok := n.Child("pts")
		if !ok {
			return d, nil, fmt.Errorf("line %d: polygon without (pts)", n.Line)
		}
		edges, err := contour(pts)
		if err != nil {
			return d, nil, err
		}
		if len(edges) < 2 {
			return d, nil, fmt.Errorf("line %d: polygon: %w", n.Line, geom.ErrDegenerate)
		}
		d.Points = polyline(edges)
		return d, edges, nil
	}
	return d, nil, fmt.Errorf("line %d: unsupported graphic %q", n.Line, n.Key())
}

func rectEdges(a, b geom.Point) []geom.Edge {
	c1, c2 := geom.Point{X: b.X, Y: a.Y}, geom.Point{X: a.X, Y: b.Y}
	return []geom.Edge{geom.Line(a, c1), geom.Line(c1, b), geom.Line(b, c2), geom.Line(c2, a)}
}

// place moves a footprint-local point to the board
func place(p, pos geom.Point, angle float64) geom.Point {
	return p.Add(pos).Rotate(pos, angle)
}

// placeDrawing moves a footprint-local drawing to the board. Rotated
// rectangles become polygons.
func placeDrawing(d board.Drawing, pos geom.Point, angle float64) board.Drawing {
	if d.Shape == board.DrawRect && angle != 0 {
		d.Shape = board.DrawPoly
		d.Points = []geom.Point{d.Start, {X: d.End.X, Y: d.Start.Y}, d.End, {X: d.Start.X, Y: d.End.Y}}
	}
	d.Start = place(d.Start, pos, angle)
	d.Mid = place(d.Mid, pos, angle)
	d.End = place(d.End, pos, angle)
	if d.Points != nil {
		pts := make([]geom.Point, len(d.Points))
		for i, p := range d.Points {
			pts[i] = place(p, pos, angle)
		}
		d.Points = pts
	}
	return d
}

func placeEdges(edges []geom.Edge, pos geom.Point, angle float64) []geom.Edge {
	out := make([]geom.Edge, len(edges))
	for i, e := range edges {
		e.Start = place(e.Start, pos, angle)
		e.Mid = place(e.Mid, pos, angle)
		e.End = place(e.End, pos, angle)
		out[i] = e
	}
	return out
}
