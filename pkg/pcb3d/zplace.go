package pcb3d

import (
	"fmt"
	"math"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// ZPlacer resolves the height of board layers from the stackup. Z is zero
// at the bottom face of the board body and grows towards the front side.
type ZPlacer struct {
	stackup board.Stackup
}

// NewZPlacer returns a placer for st
func NewZPlacer(st board.Stackup) *ZPlacer {
	return &ZPlacer{stackup: st}
}

// CopperZPlacement returns the base height and signed thickness of a
// copper layer, in millimetres. The walk goes from the back of the stackup
// to the front. Back copper grows downwards from zero, copper embedded in
// prepreg grows downwards from the top of the prepreg, everything else
// grows upwards.
func (z *ZPlacer) CopperZPlacement(layer board.LayerID) (pos, thickness float64, err error) {
	if layer == board.BCu && z.singleSided() {
		// no back copper: B.Cu is the bottom face of the body
		return 0, math.Copysign(0, -1), nil
	}
	var at, t int64
	wasPrepreg := false
	found := false

	items := z.stackup.Items
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		switch it.Type {
		case board.StackupCopper:
			if layer == board.BCu {
				t = -it.Thickness
				found = true
			} else if wasPrepreg && it.Layer != board.FCu {
				at += it.Thickness
				t = -it.Thickness
			} else {
				t = it.Thickness
			}
			if found || it.Layer == layer {
				found = true
				break
			}
			if !wasPrepreg && it.Layer != board.BCu {
				at += it.Thickness
			}
		case board.StackupDielectric:
			wasPrepreg = it.DielectricType == board.DielectricPrepreg
			t = it.TotalThickness()
			at += t
		}
		if found {
			break
		}
	}

	if !found {
		return 0, 0, fmt.Errorf("%w: layer %s not in stackup", ErrZPlacement, layer)
	}
	return geom.ToMM(at), geom.ToMM(t), nil
}

// LayerZPlacement returns the base height and signed thickness of any
// layer. Copper comes from the stackup; silkscreen and soldermask are flat
// sheets just outside the outer copper, with a zero thickness whose sign
// tells the face normal.
func (z *ZPlacer) LayerZPlacement(layer board.LayerID) (pos, thickness float64, err error) {
	if layer.IsCopper() {
		return z.CopperZPlacement(layer)
	}

	offset := MaskOffset
	if layer == board.FSilkS || layer == board.BSilkS {
		offset = SilkOffset
	}

	switch {
	case layer.IsFront():
		fp, ft, err := z.CopperZPlacement(board.FCu)
		if err != nil {
			return 0, 0, err
		}
		return math.Max(fp, fp+ft) + offset, 0, nil
	case layer.IsBack():
		bp, bt, err := z.CopperZPlacement(board.BCu)
		if err != nil {
			return 0, 0, err
		}
		return math.Min(bp, bp+bt) - offset, math.Copysign(0, -1), nil
	}
	return 0, 0, fmt.Errorf("%w: layer %s has no height", ErrZPlacement, layer)
}

func (z *ZPlacer) singleSided() bool {
	cu := z.stackup.Copper()
	return len(cu) == 1 && cu[0].Layer == board.FCu
}

// BoardBodyZPlacement returns the span of the dielectric body between the
// outer copper layers. The body always starts at zero; anything else
// means the stackup is inconsistent.
func (z *ZPlacer) BoardBodyZPlacement() (pos, thickness float64, err error) {
	fp, ft, err := z.CopperZPlacement(board.FCu)
	if err != nil {
		return 0, 0, err
	}
	bp, bt, err := z.CopperZPlacement(board.BCu)
	if err != nil {
		return 0, 0, err
	}

	top := math.Min(fp, fp+ft)
	bottom := math.Max(bp, bp+bt)
	if bottom != 0 {
		return 0, 0, fmt.Errorf("%w: board body starts at z=%g", ErrZPlacement, bottom)
	}
	if top <= bottom {
		return 0, 0, fmt.Errorf("%w: board body has no thickness", ErrZPlacement)
	}
	return bottom, top - bottom, nil
}

// CopperSpan returns the lowest and highest Z covered by copper between
// layers a and b
func (z *ZPlacer) CopperSpan(a, b board.LayerID) (bottom, top float64, err error) {
	ap, at, err := z.CopperZPlacement(a)
	if err != nil {
		return 0, 0, err
	}
	bp, bt, err := z.CopperZPlacement(b)
	if err != nil {
		return 0, 0, err
	}
	top = math.Max(math.Max(ap, ap+at), math.Max(bp, bp+bt))
	bottom = math.Min(math.Min(ap, ap+at), math.Min(bp, bp+bt))
	return bottom, top, nil
}
