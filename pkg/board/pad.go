package board

import (
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// PadAttr is the fabrication attribute of a pad
type PadAttr int

const (
	PadPTH PadAttr = iota
	PadSMD
	PadConnector
	PadNPTH
)

func (a PadAttr) String() string {
	switch a {
	case PadPTH:
		return "thru_hole"
	case PadSMD:
		return "smd"
	case PadConnector:
		return "connect"
	case PadNPTH:
		return "np_thru_hole"
	}
	return "unknown"
}

// PadShape is the geometric kind of a pad
type PadShape int

const (
	PadCircle PadShape = iota
	PadRect
	PadOval
	PadTrapezoid
	PadRoundRect
	PadChamferedRect
	PadCustom
)

func (s PadShape) String() string {
	switch s {
	case PadCircle:
		return "circle"
	case PadRect:
		return "rect"
	case PadOval:
		return "oval"
	case PadTrapezoid:
		return "trapezoid"
	case PadRoundRect:
		return "roundrect"
	case PadChamferedRect:
		return "chamfered"
	case PadCustom:
		return "custom"
	}
	return "unknown"
}

// DrillShape is the shape of a pad hole
type DrillShape int

const (
	DrillRound DrillShape = iota
	DrillOblong
)

// Pad is a footprint pad with absolute position and angle
type Pad struct {
	Number string
	// Footprint is the owning footprint's reference designator
	Footprint string
	Attr      PadAttr
	Shape     PadShape
	Pos       geom.Point
	// Angle is the absolute pad rotation in degrees
	Angle float64
	// Size is width x height before rotation
	Size  geom.Point
	Delta geom.Point
	// RoundRatio is the corner radius relative to the smaller side
	RoundRatio   float64
	ChamferRatio float64
	Chamfer      int
	// AnchorShape is the base shape of custom pads (circle or rect)
	AnchorShape PadShape
	// Primitives are custom pad polygons relative to the pad position,
	// unrotated
	Primitives geom.PolySet

	Layers LayerSet
	Net    int
	// NetName is filled in by the reader for convenience
	NetName string

	DrillShape DrillShape
	Drill      geom.Point
	// DrillOffset moves the copper away from the hole, which stays at Pos.
	// It is in pad coordinates, before rotation.
	DrillOffset geom.Point

	MaskMargin  int64
	PasteMargin int64
}

// HasHole reports whether the pad is drilled
func (p *Pad) HasHole() bool {
	return p.Drill.X > 0 && p.Drill.Y > 0
}

// IsPlated reports whether the pad hole is plated
func (p *Pad) IsPlated() bool {
	return p.HasHole() && p.Attr == PadPTH
}

// HolePos returns the absolute centre of the hole
func (p *Pad) HolePos() geom.Point {
	return p.Pos
}

// ShapePos returns the absolute centre of the copper shape: the pad
// position moved by the rotated drill offset
func (p *Pad) ShapePos() geom.Point {
	if p.DrillOffset == (geom.Point{}) {
		return p.Pos
	}
	return p.Pos.Add(p.DrillOffset).Rotate(p.Pos, p.Angle)
}

// HoleSegment returns the hole as a segment and width: oblong holes are a
// thick segment, round holes have equal end points.
func (p *Pad) HoleSegment() (a, b geom.Point, width int64) {
	c := p.HolePos()
	if p.DrillShape != DrillOblong || p.Drill.X == p.Drill.Y {
		return c, c, p.Drill.X
	}
	return geom.OvalSegment(c, p.Drill.X, p.Drill.Y, p.Angle)
}

// CornerRadius returns the rounded corner radius of round-rect and chamfered
// pads
func (p *Pad) CornerRadius() int64 {
	return int64(p.RoundRatio * float64(min(p.Size.X, p.Size.Y)))
}

// ChamferSize returns the chamfer length of chamfered pads
func (p *Pad) ChamferSize() int64 {
	return int64(p.ChamferRatio * float64(min(p.Size.X, p.Size.Y)))
}

// IsRound reports whether the pad outline is a circle
func (p *Pad) IsRound() bool {
	return p.Shape == PadCircle || (p.Shape == PadOval && p.Size.X == p.Size.Y)
}

// SubShapes returns the pad copper outline as separate polygons. Custom pads
// yield their anchor followed by every primitive; other shapes a single
// polygon. Polygons are in absolute board coordinates.
func (p *Pad) SubShapes() geom.PolySet {
	if p.Shape != PadCustom {
		return geom.PolySet{{Outline: p.outline(p.Shape)}}
	}
	out := geom.PolySet{{Outline: p.outline(p.AnchorShape)}}
	for _, prim := range p.Primitives {
		out = append(out, prim.Translate(p.Pos.Add(p.DrillOffset)).Rotate(p.Pos, p.Angle))
	}
	return out
}

func (p *Pad) outline(shape PadShape) geom.Chain {
	w, h := p.Size.X, p.Size.Y
	c := p.ShapePos()
	switch shape {
	case PadCircle:
		return geom.CircleChain(c, w/2)
	case PadOval:
		if w == h {
			return geom.CircleChain(c, w/2)
		}
		return geom.OvalChain(c, w, h, p.Angle)
	case PadTrapezoid:
		return geom.TrapezoidChain(c, w, h, p.Delta, p.Angle)
	case PadRoundRect:
		return geom.RoundRectChain(c, w, h, p.CornerRadius(), p.Angle)
	case PadChamferedRect:
		return geom.ChamferedRectChain(c, w, h, p.ChamferSize(), p.Chamfer, p.CornerRadius(), p.Angle)
	}
	return geom.RectChain(c, w, h, p.Angle)
}

// FlashedOn reports whether the pad has copper on layer l
func (p *Pad) FlashedOn(l LayerID) bool {
	return p.Layers.Has(l)
}

// OnBothOuterLayers reports whether the pad is flashed on F.Cu and B.Cu
func (p *Pad) OnBothOuterLayers() bool {
	return p.Layers.Has(FCu) && p.Layers.Has(BCu)
}
