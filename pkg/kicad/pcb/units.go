package pcb

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// Board files store millimetres. Everything below converts to board units.

func mmAt(l *kicadsexp.List, i int) (int64, error) {
	v, err := l.Float(i)
	if err != nil {
		return 0, err
	}
	return geom.FromMM(v), nil
}

// pointOf reads (key x y)
func pointOf(l *kicadsexp.List) (geom.Point, error) {
	x, err := mmAt(l, 1)
	if err != nil {
		return geom.Point{}, err
	}
	y, err := mmAt(l, 2)
	if err != nil {
		return geom.Point{}, err
	}
	return geom.Point{X: x, Y: y}, nil
}

func childPoint(n *kicadsexp.List, key string) (geom.Point, error) {
	c, ok := n.Child(key)
	if !ok {
		return geom.Point{}, fmt.Errorf("line %d: (%s) without (%s)", n.Line, n.Key(), key)
	}
	return pointOf(c)
}

// childMM reads the first argument of (key v) in board units, def when the
// child is missing
func childMM(n *kicadsexp.List, key string, def int64) (int64, error) {
	c, ok := n.Child(key)
	if !ok {
		return def, nil
	}
	return mmAt(c, 1)
}

func childFloat(n *kicadsexp.List, key string, def float64) float64 {
	c, ok := n.Child(key)
	if !ok {
		return def
	}
	v, err := c.Float(1)
	if err != nil {
		return def
	}
	return v
}

func childString(n *kicadsexp.List, key string) string {
	if c, ok := n.Child(key); ok {
		return c.Str(1)
	}
	return ""
}

// placement reads (at x y [angle])
func placement(n *kicadsexp.List) (geom.Point, float64, error) {
	at, ok := n.Child("at")
	if !ok {
		return geom.Point{}, 0, fmt.Errorf("line %d: (%s) without (at)", n.Line, n.Key())
	}
	p, err := pointOf(at)
	if err != nil {
		return geom.Point{}, 0, err
	}
	angle := 0.0
	if at.Len() > 3 {
		if angle, err = at.Float(3); err != nil {
			return geom.Point{}, 0, err
		}
	}
	return p, angle, nil
}

// vec3 reads (key (xyz x y z)), def when missing
func vec3(n *kicadsexp.List, key string, def mgl64.Vec3) (mgl64.Vec3, error) {
	c, ok := n.Child(key)
	if !ok {
		return def, nil
	}
	xyz, ok := c.Child("xyz")
	if !ok {
		return def, fmt.Errorf("line %d: (%s) without (xyz)", c.Line, key)
	}
	var v mgl64.Vec3
	for i := range v {
		f, err := xyz.Float(i + 1)
		if err != nil {
			return def, err
		}
		v[i] = f
	}
	return v, nil
}

func layerOf(n *kicadsexp.List) (board.LayerID, error) {
	name := childString(n, "layer")
	l, ok := board.LayerByName(name)
	if !ok {
		return board.UndefinedLayer, fmt.Errorf("line %d: (%s) on unknown layer %q", n.Line, n.Key(), name)
	}
	return l, nil
}

// layerList expands (layers "F.Cu" "*.Mask" ...)
func layerList(n *kicadsexp.List, enabled board.LayerSet) board.LayerSet {
	c, ok := n.Child("layers")
	if !ok {
		return 0
	}
	var s board.LayerSet
	for i := 1; i < c.Len(); i++ {
		s |= board.ExpandLayerPattern(c.Str(i), enabled)
	}
	return s
}

// strokeWidth reads (stroke (width w)) or the older bare (width w)
func strokeWidth(n *kicadsexp.List) (int64, error) {
	if st, ok := n.Child("stroke"); ok {
		return childMM(st, "width", 0)
	}
	return childMM(n, "width", 0)
}

// filled reads (fill solid|yes|none|no) and (fill (type solid))
func filled(n *kicadsexp.List) bool {
	c, ok := n.Child("fill")
	if !ok {
		return false
	}
	v := c.Str(1)
	if t, ok := c.Child("type"); ok {
		v = t.Str(1)
	}
	switch v {
	case "solid", "yes", "true", "color", "background":
		return true
	}
	return false
}

// contour reads a (pts (xy x y) (arc (start) (mid) (end)) ...) list as the
// edges of a closed ring
func contour(pts *kicadsexp.List) ([]geom.Edge, error) {
	var edges []geom.Edge
	var first, last geom.Point
	started := false
	link := func(p geom.Point) {
		if !started {
			first, last, started = p, p, true
			return
		}
		if p != last {
			edges = append(edges, geom.Line(last, p))
		}
		last = p
	}

	for _, it := range pts.Lists() {
		switch it.Key() {
		case "xy":
			p, err := pointOf(it)
			if err != nil {
				return nil, err
			}
			link(p)
		case "arc":
			s, err := childPoint(it, "start")
			if err != nil {
				return nil, err
			}
			m, err := childPoint(it, "mid")
			if err != nil {
				return nil, err
			}
			e, err := childPoint(it, "end")
			if err != nil {
				return nil, err
			}
			link(s)
			edges = append(edges, geom.ArcThrough(s, m, e))
			last = e
		}
	}
	if started && last != first {
		edges = append(edges, geom.Line(last, first))
	}
	return edges, nil
}

// polyline flattens closed ring edges to vertices
func polyline(edges []geom.Edge) []geom.Point {
	if len(edges) == 0 {
		return nil
	}
	return geom.Chain{Edges: edges}.Polyline(arcMaxError)
}

// arcMaxError is the chord error used when arcs become polylines
const arcMaxError = 5000
