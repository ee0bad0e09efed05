package odb

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// FeaturesManager collects the features of one layer. Every Add method
// returns the index of the feature it added, which the eda data uses to
// tie features to nets.
type FeaturesManager struct {
	f       Formatter
	Symbols *SymbolTable
	Attrs   *AttrTable
	lines   []string
}

// NewFeaturesManager returns an empty layer
func NewFeaturesManager(f Formatter) *FeaturesManager {
	return &FeaturesManager{f: f, Symbols: NewSymbolTable(f), Attrs: NewAttrTable("Feature")}
}

// Len returns the number of features
func (m *FeaturesManager) Len() int { return len(m.lines) }

func (m *FeaturesManager) add(s string) int {
	m.lines = append(m.lines, s)
	return len(m.lines) - 1
}

// AddLine adds a round-ended line of the given width
func (m *FeaturesManager) AddLine(a, b geom.Point, width int64, attrs ...Attr) int {
	sym := m.Symbols.Round(width)
	return m.add(fmt.Sprintf("L %s %s %d P 0%s", m.f.XY(a), m.f.XY(b), sym, attrSuffix(attrs)))
}

// AddArc adds an arc edge stroked with width. Full circles start and end
// at the same point.
func (m *FeaturesManager) AddArc(e geom.Edge, width int64, attrs ...Attr) int {
	c, cw, ok := arcCenter(e)
	if !ok {
		return m.AddLine(e.Start, e.End, width, attrs...)
	}
	sym := m.Symbols.Round(width)
	return m.add(fmt.Sprintf("A %s %s %s %d P 0 %s%s",
		m.f.XY(e.Start), m.f.XY(e.End), m.f.XY(c), sym, yn(cw), attrSuffix(attrs)))
}

// AddPad adds a pad flash of symbol sym rotated clockwise by angle degrees
func (m *FeaturesManager) AddPad(pos geom.Point, sym int, angle float64, mirror bool, attrs ...Attr) int {
	orient := 8
	if mirror {
		orient = 9
	}
	return m.add(fmt.Sprintf("P %s %d P 0 %d %s%s", m.f.XY(pos), sym, orient, m.f.Angle(angle), attrSuffix(attrs)))
}

// AddSurface adds a filled polygon with its holes
func (m *FeaturesManager) AddSurface(p geom.Polygon, attrs ...Attr) int {
	var b strings.Builder
	fmt.Fprintf(&b, "S P 0%s\n", attrSuffix(attrs))
	m.contour(&b, p.Outline, true)
	for _, h := range p.Holes {
		m.contour(&b, h, false)
	}
	b.WriteString("SE")
	return m.add(b.String())
}

// contour writes one OB..OE block. Islands run clockwise and holes
// counter-clockwise in the job frame, where Y points up.
func (m *FeaturesManager) contour(b *strings.Builder, c geom.Chain, island bool) {
	if len(c.Edges) == 0 {
		return
	}
	// a positive area in board coordinates is clockwise once Y is flipped
	if !c.IsCircle() && (c.SignedArea() > 0) != island {
		c = c.Reverse()
	}
	kind := "H"
	if island {
		kind = "I"
	}
	fmt.Fprintf(b, "OB %s %s\n", m.f.XY(c.Edges[0].Start), kind)
	for _, e := range c.Edges {
		if e.Kind == geom.LineEdge {
			fmt.Fprintf(b, "OS %s\n", m.f.XY(e.End))
			continue
		}
		center, cw, ok := arcCenter(e)
		switch {
		case !ok:
			fmt.Fprintf(b, "OS %s\n", m.f.XY(e.End))
		case e.IsCircle():
			// two half circles, Mid is opposite Start
			fmt.Fprintf(b, "OC %s %s %s\n", m.f.XY(e.Mid), m.f.XY(center), yn(island))
			fmt.Fprintf(b, "OC %s %s %s\n", m.f.XY(e.End), m.f.XY(center), yn(island))
		default:
			fmt.Fprintf(b, "OC %s %s %s\n", m.f.XY(e.End), m.f.XY(center), yn(cw))
		}
	}
	b.WriteString("OE\n")
}

// AddDrawing adds a graphic item. Stroked shapes become lines and arcs,
// filled shapes surfaces.
func (m *FeaturesManager) AddDrawing(d board.Drawing, attrs ...Attr) []int {
	w := max(d.Width, 0)
	switch d.Shape {
	case board.DrawSegment:
		return []int{m.AddLine(d.Start, d.End, w, attrs...)}
	case board.DrawArc:
		return []int{m.AddArc(geom.ArcThrough(d.Start, d.Mid, d.End), w, attrs...)}
	case board.DrawCircle:
		r := int64(d.Start.Distance(d.End))
		if d.Filled {
			return []int{m.AddSurface(geom.Polygon{Outline: geom.CircleChain(d.Start, r+w/2)}, attrs...)}
		}
		return []int{m.AddArc(geom.Circle(d.Start, r), w, attrs...)}
	case board.DrawRect, board.DrawPoly:
		pts := d.Points
		if d.Shape == board.DrawRect {
			pts = []geom.Point{d.Start, {X: d.End.X, Y: d.Start.Y}, d.End, {X: d.Start.X, Y: d.End.Y}}
		}
		if len(pts) < 2 {
			return nil
		}
		var out []int
		if d.Filled && len(pts) >= 3 {
			out = append(out, m.AddSurface(geom.Polygon{Outline: geom.NewChain(pts)}, attrs...))
			if w == 0 {
				return out
			}
		}
		for i := range pts {
			out = append(out, m.AddLine(pts[i], pts[(i+1)%len(pts)], w, attrs...))
		}
		return out
	}
	return nil
}

// AddTrack adds a straight or arc track
func (m *FeaturesManager) AddTrack(t board.Track, attrs ...Attr) int {
	if t.Kind == board.ArcTrack {
		return m.AddArc(geom.ArcThrough(t.Start, t.Mid, t.End), t.Width, attrs...)
	}
	return m.AddLine(t.Start, t.End, t.Width, attrs...)
}

// AddPadShape flashes pad p grown by margin. Pads without a standard symbol
// are written as one surface per sub-shape.
func (m *FeaturesManager) AddPadShape(p *board.Pad, margin int64, attrs ...Attr) []int {
	if sym, ok := m.Symbols.PadSymbol(p, margin); ok {
		angle := -p.Angle
		if p.IsRound() {
			angle = 0
		}
		return []int{m.AddPad(p.ShapePos(), sym, angle, false, attrs...)}
	}
	var out []int
	grown := *p
	grown.Size = geom.Point{X: p.Size.X + 2*margin, Y: p.Size.Y + 2*margin}
	for _, poly := range grown.SubShapes() {
		out = append(out, m.AddSurface(poly, attrs...))
	}
	return out
}

// AddHole adds a drill hit: a pad for round holes, a line for slots
func (m *FeaturesManager) AddHole(a, b geom.Point, diameter int64, attrs ...Attr) int {
	if a == b {
		return m.AddPad(a, m.Symbols.Round(diameter), 0, false, attrs...)
	}
	return m.AddLine(a, b, diameter, attrs...)
}

// WriteTo writes the complete features file
func (m *FeaturesManager) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UNITS=%s\n", m.f.Units)
	b.WriteString("#\n#Num Features\n#\n")
	fmt.Fprintf(&b, "F %d\n", len(m.lines))
	if m.Symbols.Len() > 0 {
		b.WriteString("#\n#Feature symbol names\n#\n")
		m.Symbols.WriteTo(&b)
	}
	m.Attrs.WriteTo(&b)
	if len(m.lines) > 0 {
		b.WriteString("#\n#Layer features\n#\n")
		for _, l := range m.lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// arcCenter returns the rounded centre of an arc edge and whether it turns
// clockwise in the job frame
func arcCenter(e geom.Edge) (geom.Point, bool, bool) {
	a := e.Arc()
	c, ok := a.Center()
	if !ok {
		return geom.Point{}, false, false
	}
	// counter-clockwise with Y down is clockwise with Y up
	return geom.FromVec(c), a.Sweep() > 0, true
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// polygonArea returns the area of an outline minus its holes
func polygonArea(outline geom.Chain, holes []geom.Chain) float64 {
	a := math.Abs(outline.SignedArea())
	for _, h := range holes {
		a -= math.Abs(h.SignedArea())
	}
	return a
}
