package odb

import (
	"fmt"
	"io"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Access side codes of netlist points
const (
	AccessTop    = 'T'
	AccessBottom = 'B'
	AccessBoth   = 'D'
	AccessInner  = 'I'
)

// Solder mask exposure codes of netlist points
const (
	ExposureCovered   = 'c'
	ExposureSecondary = 's'
	ExposurePartial   = 'p'
	ExposureExposed   = 'e'
)

// NetPoint is one test access point of a net
type NetPoint struct {
	Net int
	// Radius is the hole radius, zero for surface points
	Radius int64
	Pos    geom.Point
	Side   byte
	// Size is the pad size of surface points
	Size     geom.Point
	Exposure byte
	Via      bool
	// MidPoint marks points that are not net end points
	MidPoint bool
}

// Netlist is the cadnet netlist of a step
type Netlist struct {
	f      Formatter
	nets   []string
	points []NetPoint
}

// NewNetlist returns an empty netlist
func NewNetlist(f Formatter) *Netlist {
	return &Netlist{f: f}
}

// SetNets sets the net names, indexed like the eda nets
func (n *Netlist) SetNets(names []string) { n.nets = names }

// Add appends a point
func (n *Netlist) Add(p NetPoint) { n.points = append(n.points, p) }

// Points returns the recorded points
func (n *Netlist) Points() []NetPoint { return n.points }

// PadPoint returns the net point of a pad on net index net
func PadPoint(p *board.Pad, net int) NetPoint {
	np := NetPoint{Net: net, Pos: p.ShapePos(), Size: p.Size}
	front, back := p.Layers.Has(board.FCu), p.Layers.Has(board.BCu)
	switch {
	case p.HasHole() && front && back:
		np.Side = AccessBoth
	case front:
		np.Side = AccessTop
	case back:
		np.Side = AccessBottom
	default:
		np.Side = AccessInner
	}
	if p.HasHole() {
		np.Pos = p.HolePos()
		np.Radius = min(p.Drill.X, p.Drill.Y) / 2
	}
	np.Exposure = exposure(np.Side, p.Layers.Has(board.FMask), p.Layers.Has(board.BMask))
	return np
}

// ViaPoint returns the net point of a via. Vias are tented.
func ViaPoint(v board.Via, net int) NetPoint {
	np := NetPoint{Net: net, Pos: v.Pos, Radius: v.Drill / 2, Via: true, MidPoint: true}
	switch {
	case v.Top == board.FCu && v.Bottom == board.BCu:
		np.Side = AccessBoth
	case v.Top == board.FCu:
		np.Side = AccessTop
	case v.Bottom == board.BCu:
		np.Side = AccessBottom
	default:
		np.Side = AccessInner
	}
	np.Exposure = ExposureCovered
	return np
}

// exposure classifies the mask openings of a point
func exposure(side byte, frontOpen, backOpen bool) byte {
	switch side {
	case AccessTop:
		if frontOpen {
			return ExposureExposed
		}
	case AccessBottom:
		if backOpen {
			return ExposureExposed
		}
	case AccessBoth:
		switch {
		case frontOpen && backOpen:
			return ExposureExposed
		case frontOpen:
			return ExposurePartial
		case backOpen:
			return ExposureSecondary
		}
	}
	return ExposureCovered
}

// WriteTo writes the netlist file
func (n *Netlist) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString("H optimize n staggered n\n")
	for i, name := range n.nets {
		fmt.Fprintf(&b, "$%d %s\n", i, name)
	}
	b.WriteString("#\n#Netlist points\n#\n")
	for _, p := range n.points {
		fmt.Fprintf(&b, "%d %s %s %c", p.Net, n.f.Length(p.Radius), n.f.XY(p.Pos), p.Side)
		if p.Radius == 0 {
			fmt.Fprintf(&b, " %s %s", n.f.Length(p.Size.X), n.f.Length(p.Size.Y))
		}
		epoint := 'e'
		if p.MidPoint {
			epoint = 'm'
		}
		fmt.Fprintf(&b, " %c %c", epoint, p.Exposure)
		if p.Via {
			b.WriteString(" v")
		}
		b.WriteByte('\n')
	}
	out, err := io.WriteString(w, b.String())
	return int64(out), err
}
