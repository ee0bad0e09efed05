package pcb3d

import (
	"fmt"
	"math"

	polyclip "github.com/akavel/polyclip-go"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// flattening error for polygons handed to the clipper, board units
const clipChordError = 2000

// SilkscreenPolygons returns the merged artwork of a silkscreen layer,
// board drawings and footprint graphics alike
func SilkscreenPolygons(b *board.Board, l board.LayerID) geom.PolySet {
	var ps geom.PolySet
	for _, d := range b.Drawings {
		if d.Layer == l {
			ps = append(ps, d.Polygons()...)
		}
	}
	for _, fp := range b.Footprints {
		for _, d := range fp.Graphics {
			if d.Layer == l {
				ps = append(ps, d.Polygons()...)
			}
		}
	}
	if len(ps) == 0 {
		return nil
	}
	out, err := unionPolys(ps)
	if err != nil {
		return ps
	}
	return out
}

// SoldermaskPolygons returns the board outline minus the openings of every
// pad exposed on mask layer l
func SoldermaskPolygons(b *board.Board, l board.LayerID) geom.PolySet {
	if len(b.Outline) == 0 {
		return nil
	}
	var openings geom.PolySet
	for _, p := range b.Pads() {
		if p.Layers.Has(l) {
			openings = append(openings, p.SubShapes()...)
		}
	}
	for _, d := range b.Drawings {
		if d.Layer == l {
			openings = append(openings, d.Polygons()...)
		}
	}
	if len(openings) == 0 {
		return b.Outline
	}
	out, err := boolPolys(b.Outline, openings, polyclip.DIFFERENCE)
	if err != nil {
		return b.Outline
	}
	return out
}

func unionPolys(ps geom.PolySet) (geom.PolySet, error) {
	return boolPolys(ps[:1], ps[1:], polyclip.UNION)
}

func boolPolys(subject, clip geom.PolySet, op polyclip.Op) (out geom.PolySet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polygon clipper: %v", r)
		}
	}()

	res := toClip(subject)
	if op == polyclip.UNION {
		res = res.Construct(polyclip.UNION, toClip(clip))
	} else {
		// subtract the merged clip area so overlapping openings do not
		// cancel each other out
		merged := polyclip.Polygon{}
		for _, p := range clip {
			merged = merged.Construct(polyclip.UNION, toClip(geom.PolySet{p}))
		}
		res = res.Construct(op, merged)
	}
	return fromClip(res), nil
}

func toClip(ps geom.PolySet) polyclip.Polygon {
	var out polyclip.Polygon
	add := func(c geom.Chain) {
		pts := c.Polyline(clipChordError)
		if len(pts) < 3 {
			return
		}
		ct := make(polyclip.Contour, len(pts))
		for i, p := range pts {
			ct[i] = polyclip.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		out = append(out, ct)
	}
	for _, p := range ps {
		add(p.Outline)
		for _, h := range p.Holes {
			add(h)
		}
	}
	return out
}

func fromClip(pg polyclip.Polygon) geom.PolySet {
	chains := make([]geom.Chain, 0, len(pg))
	for _, ct := range pg {
		pts := make([]geom.Point, len(ct))
		for i, p := range ct {
			pts[i] = geom.Point{X: int64(math.Round(p.X)), Y: int64(math.Round(p.Y))}
		}
		chains = append(chains, geom.NewChain(pts))
	}
	return geom.NestContours(chains)
}
