package pcb

import (
	"strings"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// stackup reads (setup (stackup ...)). Boards without one, or whose stackup
// does not match the copper layer count, get the default cross-section.
//
// Expected format:
//
//	(stackup
//	  (layer "F.Mask" (type "Top Solder Mask") (thickness 0.01))
//	  (layer "F.Cu" (type "copper") (thickness 0.035))
//	  (layer "dielectric 1" (type "core") (thickness 1.51) (material "FR4")
//	    addsublayer (thickness 0.2) (material "FR4"))
//	  ...)
func (r *reader) stackup(n *kicadsexp.List) board.Stackup {
	def := board.DefaultStackup(r.b.CopperCount, r.b.Thickness)
	if n == nil {
		return def
	}

	var st board.Stackup
	for _, l := range n.Children("layer") {
		it, ok := stackupItem(l)
		if !ok {
			r.p.log.Debug("ignoring stackup entry", zap.String("name", l.Str(1)), zap.Int("line", l.Line))
			continue
		}
		st.Items = append(st.Items, it)
	}

	if got := len(st.Copper()); got != r.b.CopperCount {
		r.p.log.Warn("stackup does not match the copper layers, using the default",
			zap.Int("stackup_copper", got),
			zap.Int("board_copper", r.b.CopperCount))
		return def
	}
	return st
}

func stackupItem(l *kicadsexp.List) (board.StackupItem, bool) {
	it := board.StackupItem{Name: l.Str(1), Layer: board.UndefinedLayer}
	if l.Len() < 2 {
		return it, false
	}
	typ := childString(l, "type")
	lower := strings.ToLower(typ)

	switch {
	case lower == "copper":
		it.Type = board.StackupCopper
	case lower == board.DielectricCore || lower == board.DielectricPrepreg:
		it.Type = board.StackupDielectric
		it.DielectricType = lower
	case strings.Contains(lower, "solder mask"):
		it.Type = board.StackupSolderMask
	case strings.Contains(lower, "silk screen"):
		it.Type = board.StackupSilkScreen
	case strings.Contains(lower, "solder paste"):
		it.Type = board.StackupSolderPaste
	default:
		return it, false
	}

	if it.Type != board.StackupDielectric {
		id, ok := board.LayerByName(it.Name)
		if !ok {
			return it, false
		}
		it.Layer = id
	}

	// properties after addsublayer describe the newest sublayer
	sub := -1
	for _, x := range l.Items[2:] {
		if sym, ok := x.(kicadsexp.Symbol); ok {
			if sym == "addsublayer" {
				it.Sublayers = append(it.Sublayers, board.Sublayer{})
				sub = len(it.Sublayers) - 1
			}
			continue
		}
		prop := x.(*kicadsexp.List)
		switch prop.Key() {
		case "thickness":
			t, err := mmAt(prop, 1)
			if err != nil {
				continue
			}
			if sub >= 0 {
				it.Sublayers[sub].Thickness = t
			} else {
				it.Thickness = t
			}
		case "material":
			if sub >= 0 {
				it.Sublayers[sub].Material = prop.Str(1)
			} else {
				it.Material = prop.Str(1)
			}
		case "epsilon_r":
			if sub >= 0 {
				it.Sublayers[sub].EpsilonR, _ = prop.Float(1)
			}
		case "loss_tangent":
			if sub >= 0 {
				it.Sublayers[sub].LossTangent, _ = prop.Float(1)
			}
		case "color":
			it.Color = prop.Str(1)
		}
	}
	return it, true
}
