package pcb

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// zone reads a copper zone or rule area with its computed fill.
//
// Expected format:
//
//	(zone (net 1) (net_name "GND") (layers "F.Cu" "B.Cu") (name "gnd") (priority 1)
//	  (keepout (tracks not_allowed) ...)
//	  (polygon (pts (xy x y) ...))
//	  (filled_polygon (layer "F.Cu") (pts (xy x y) ...)) ...)
func (r *reader) zone(n *kicadsexp.List) (board.Zone, error) {
	z := board.Zone{
		Name:     childString(n, "name"),
		Priority: int(childFloat(n, "priority", 0)),
		Fills:    map[board.LayerID]geom.PolySet{},
	}
	z.Net, _ = r.netOf(n)
	_, z.Keepout = n.Child("keepout")

	z.Layers = layerList(n, r.b.Enabled)
	if l, ok := board.LayerByName(childString(n, "layer")); ok {
		z.Layers = z.Layers.With(l)
	}
	if z.Layers == 0 {
		return z, fmt.Errorf("line %d: zone without layers", n.Line)
	}

	var outlines []geom.Chain
	for _, p := range n.Children("polygon") {
		pts, ok := p.Child("pts")
		if !ok {
			continue
		}
		edges, err := contour(pts)
		if err != nil {
			return z, err
		}
		if len(edges) >= 2 {
			outlines = append(outlines, geom.Chain{Edges: edges})
		}
	}
	if nested := geom.NestContours(outlines); len(nested) > 0 {
		z.Outline = nested[0]
	} else {
		return z, fmt.Errorf("line %d: zone outline: %w", n.Line, geom.ErrDegenerate)
	}

	single := board.UndefinedLayer
	if ls := z.Layers.Layers(); len(ls) == 1 {
		single = ls[0]
	}
	for _, f := range n.Children("filled_polygon") {
		layer := single
		if name := childString(f, "layer"); name != "" {
			l, ok := board.LayerByName(name)
			if !ok {
				return z, fmt.Errorf("line %d: fill on unknown layer %q", f.Line, name)
			}
			layer = l
		}
		if layer == board.UndefinedLayer {
			return z, fmt.Errorf("line %d: fill without layer in a multi-layer zone", f.Line)
		}
		pts, ok := f.Child("pts")
		if !ok {
			continue
		}
		edges, err := contour(pts)
		if err != nil {
			return z, err
		}
		if len(edges) < 3 {
			continue
		}
		z.Fills[layer] = append(z.Fills[layer], geom.Polygon{Outline: geom.Chain{Edges: edges}})
	}
	return z, nil
}
