package pcb

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// track reads a straight or arc track
// Expected format: (segment (start x y) (end x y) (width w) (layer "F.Cu") (net n))
// or (arc (start x y) (mid x y) (end x y) (width w) (layer "F.Cu") (net n))
func (r *reader) track(n *kicadsexp.List) (board.Track, error) {
	var t board.Track
	var err error

	if t.Layer, err = layerOf(n); err != nil {
		return t, err
	}
	if !t.Layer.IsCopper() {
		return t, fmt.Errorf("line %d: track on non-copper layer %s", n.Line, t.Layer)
	}
	if t.Start, err = childPoint(n, "start"); err != nil {
		return t, err
	}
	if t.End, err = childPoint(n, "end"); err != nil {
		return t, err
	}
	if n.Key() == "arc" {
		t.Kind = board.ArcTrack
		if t.Mid, err = childPoint(n, "mid"); err != nil {
			return t, err
		}
	}
	if t.Width, err = childMM(n, "width", 0); err != nil {
		return t, err
	}
	if t.Width <= 0 {
		return t, fmt.Errorf("line %d: track without width", n.Line)
	}
	t.Net, _ = r.netOf(n)
	return t, nil
}

// via reads a via. The copper span runs from the front-most to the
// back-most of its two layers.
// Expected format: (via [blind|micro] (at x y) (size d) (drill d) (layers "F.Cu" "B.Cu") (net n))
func (r *reader) via(n *kicadsexp.List) (board.Via, error) {
	v := board.Via{Type: board.ViaThrough}
	switch {
	case n.HasSymbol("blind"), n.HasSymbol("buried"):
		v.Type = board.ViaBlindBuried
	case n.HasSymbol("micro"):
		v.Type = board.ViaMicro
	}

	var err error
	if v.Pos, _, err = placement(n); err != nil {
		return v, err
	}
	if v.Diameter, err = childMM(n, "size", 0); err != nil {
		return v, err
	}
	if v.Drill, err = childMM(n, "drill", 0); err != nil {
		return v, err
	}
	if v.Diameter <= 0 || v.Drill <= 0 {
		return v, fmt.Errorf("line %d: via without size or drill", n.Line)
	}

	layers := layerList(n, r.b.Enabled).Copper().Layers()
	if len(layers) == 0 {
		v.Top, v.Bottom = board.FCu, board.BCu
	} else {
		// layer ids grow from front to back
		v.Top, v.Bottom = layers[0], layers[len(layers)-1]
	}
	if v.Type == board.ViaThrough && (v.Top != board.FCu || v.Bottom != board.BCu) {
		v.Type = board.ViaBlindBuried
	}
	v.Net, _ = r.netOf(n)
	v.RemoveUnconnected = n.Flag("remove_unused_layers")
	return v, nil
}
