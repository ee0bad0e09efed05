package odb

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// SubnetKind is the record type of a subnet
type SubnetKind int

const (
	SubnetToeprint SubnetKind = iota
	SubnetVia
	SubnetTrace
	SubnetPlane
)

// FeatureID points at one feature of a layer. Type is 'C' for copper,
// 'L' for laminate and 'H' for holes.
type FeatureID struct {
	Type    byte
	Layer   int
	Feature int
}

// Subnet is a connected piece of a net
type Subnet struct {
	Kind SubnetKind
	// Side, Component and Toeprint identify the pin of toeprint subnets
	Side      board.Side
	Component int
	Toeprint  int
	Features  []FeatureID
}

// EdaNet is a net with its subnets
type EdaNet struct {
	Index   int
	Name    string
	Subnets []*Subnet
}

// AddSubnet appends a subnet and returns it with its index in the net
func (n *EdaNet) AddSubnet(kind SubnetKind) (*Subnet, int) {
	s := &Subnet{Kind: kind}
	n.Subnets = append(n.Subnets, s)
	return s, len(n.Subnets) - 1
}

// Pin is one pin of a package, in package coordinates
type Pin struct {
	Name string
	// Type is 'T' for through-hole, 'B' for blind and 'S' for surface pins
	Type byte
	Pos  geom.Point
	// Hole is the finished hole size, zero for surface pins
	Hole int64
	// Electrical is 'E', or 'M' for mechanical pins
	Electrical byte
	// Mount is 'S' for SMT, 'T' for through-hole, 'U' when undefined
	Mount   byte
	Outline geom.Chain
}

// Package is a footprint definition shared by every component using it
type Package struct {
	Index int
	Name  string
	Pitch int64
	Box   geom.Rect
	Pins  []Pin
	pinIx map[string]int
}

// PinIndex returns the index of pin name
func (p *Package) PinIndex(name string) (int, bool) {
	i, ok := p.pinIx[name]
	return i, ok
}

// EdaData holds the eda/data records: nets, subnets and packages
type EdaData struct {
	f        Formatter
	layers   []string
	layerIx  map[string]int
	nets     []*EdaNet
	netCodes map[int]*EdaNet
	packages []*Package
	pkgIx    map[string]*Package
}

// NewEdaData returns empty eda data
func NewEdaData(f Formatter) *EdaData {
	return &EdaData{
		f:        f,
		layerIx:  map[string]int{},
		netCodes: map[int]*EdaNet{},
		pkgIx:    map[string]*Package{},
	}
}

// LayerIndex returns the LYR index of a layer, adding it when new
func (e *EdaData) LayerIndex(name string) int {
	if i, ok := e.layerIx[name]; ok {
		return i
	}
	i := len(e.layers)
	e.layerIx[name] = i
	e.layers = append(e.layers, name)
	return i
}

// Net returns the net of code, adding it with name when new
func (e *EdaData) Net(code int, name string) *EdaNet {
	if n, ok := e.netCodes[code]; ok {
		return n
	}
	n := &EdaNet{Index: len(e.nets), Name: LegalNetName(name)}
	e.nets = append(e.nets, n)
	e.netCodes[code] = n
	return n
}

// Nets returns the nets in index order
func (e *EdaData) Nets() []*EdaNet { return e.nets }

// Packages returns the packages in index order
func (e *EdaData) Packages() []*Package { return e.packages }

// Package returns the package of fp, defining it from fp when new.
// Package geometry is unrotated and, for back side footprints, unmirrored.
func (e *EdaData) Package(fp *board.Footprint) *Package {
	key := fp.LibID
	if key == "" {
		key = fp.Reference
	}
	if p, ok := e.pkgIx[key]; ok {
		return p
	}
	p := &Package{Index: len(e.packages), Name: LegalEntityName(key), pinIx: map[string]int{}}
	for _, pad := range fp.Pads {
		if _, dup := p.pinIx[pad.Number]; dup || pad.Number == "" {
			continue
		}
		local := packagePoint(fp, pad.Pos)
		pin := Pin{Name: pad.Number, Pos: local, Type: 'S', Electrical: 'E', Mount: 'S'}
		if pad.HasHole() {
			pin.Type, pin.Mount, pin.Hole = 'T', 'T', min(pad.Drill.X, pad.Drill.Y)
			if !pad.OnBothOuterLayers() {
				pin.Type = 'B'
			}
		}
		if pad.Attr == board.PadNPTH {
			pin.Electrical, pin.Mount = 'M', 'U'
		}
		if shapes := pad.SubShapes(); len(shapes) > 0 {
			pin.Outline = packageChain(fp, shapes[0].Outline)
		}
		p.pinIx[pin.Name] = len(p.Pins)
		p.Pins = append(p.Pins, pin)
		p.Box = p.Box.Union(pin.Outline.Bounds())
	}
	p.Pitch = pitch(p.Pins)
	e.packages = append(e.packages, p)
	e.pkgIx[key] = p
	return p
}

// packagePoint moves a board point into the footprint's own frame
func packagePoint(fp *board.Footprint, p geom.Point) geom.Point {
	l := p.Rotate(fp.Pos, -fp.Angle).Sub(fp.Pos)
	if fp.Side == board.Back {
		l.X = -l.X
	}
	return l
}

func packageChain(fp *board.Footprint, c geom.Chain) geom.Chain {
	out := geom.Chain{Edges: make([]geom.Edge, len(c.Edges))}
	for i, e := range c.Edges {
		out.Edges[i] = geom.Edge{
			Kind:  e.Kind,
			Start: packagePoint(fp, e.Start),
			Mid:   packagePoint(fp, e.Mid),
			End:   packagePoint(fp, e.End),
		}
	}
	return out
}

// pitch is the smallest distance between two pins, or one inch for
// packages with fewer than two pins
func pitch(pins []Pin) int64 {
	best := math.Inf(1)
	for i := range pins {
		for j := i + 1; j < len(pins); j++ {
			best = math.Min(best, pins[i].Pos.Distance(pins[j].Pos))
		}
	}
	if math.IsInf(best, 1) {
		return nmPerInch
	}
	return int64(best)
}

// WriteTo writes the eda/data file
func (e *EdaData) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "HDR %s\n", version.Generator())
	fmt.Fprintf(&b, "UNITS=%s\n", e.f.Units)
	fmt.Fprintf(&b, "LYR %s\n", strings.Join(e.layers, " "))
	b.WriteString("#\n#Net attribute names\n#\n")
	for _, n := range e.nets {
		fmt.Fprintf(&b, "# NET %d\n", n.Index)
		fmt.Fprintf(&b, "NET %s\n", n.Name)
		for _, s := range n.Subnets {
			switch s.Kind {
			case SubnetToeprint:
				side := "T"
				if s.Side == board.Back {
					side = "B"
				}
				fmt.Fprintf(&b, "SNT TOP %s %d %d\n", side, s.Component, s.Toeprint)
			case SubnetVia:
				b.WriteString("SNT VIA\n")
			case SubnetTrace:
				b.WriteString("SNT TRC\n")
			case SubnetPlane:
				b.WriteString("SNT PLN S R 0\n")
			}
			fids := append([]FeatureID(nil), s.Features...)
			sort.SliceStable(fids, func(i, j int) bool {
				if fids[i].Layer != fids[j].Layer {
					return fids[i].Layer < fids[j].Layer
				}
				return fids[i].Feature < fids[j].Feature
			})
			for _, id := range fids {
				fmt.Fprintf(&b, "FID %c %d %d\n", id.Type, id.Layer, id.Feature)
			}
		}
	}
	b.WriteString("#\n#Packages\n#\n")
	for _, p := range e.packages {
		fmt.Fprintf(&b, "# PKG %d\n", p.Index)
		box := p.Box
		if box.Empty() {
			box = geom.NewRect(geom.Point{}, geom.Point{})
		}
		// Y flips, so the board's max Y is the job's min Y
		fmt.Fprintf(&b, "PKG %s %s %s %s %s %s\n", p.Name, e.f.Length(p.Pitch),
			e.f.X(box.Min.X), e.f.Y(box.Max.Y), e.f.X(box.Max.X), e.f.Y(box.Min.Y))
		e.writeRect(&b, box)
		for _, pin := range p.Pins {
			fmt.Fprintf(&b, "PIN %s %c %s %s %c %c\n", token(pin.Name), pin.Type, e.f.XY(pin.Pos), e.f.Length(pin.Hole), pin.Electrical, pin.Mount)
			e.writeOutline(&b, pin.Outline)
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// writeRect writes an RC record: lower left corner, width and height
func (e *EdaData) writeRect(b *strings.Builder, r geom.Rect) {
	fmt.Fprintf(b, "RC %s %s %s %s\n", e.f.X(r.Min.X), e.f.Y(r.Max.Y), e.f.Length(r.Width()), e.f.Length(r.Height()))
}

// writeOutline writes a pin outline: CR for circles, RC for axis aligned
// rectangles and a CT contour otherwise
func (e *EdaData) writeOutline(b *strings.Builder, c geom.Chain) {
	if len(c.Edges) == 0 {
		return
	}
	if c.IsCircle() {
		a := c.Edges[0].Arc()
		center, _ := a.Center()
		fmt.Fprintf(b, "CR %s %s\n", e.f.XY(geom.FromVec(center)), e.f.Length(int64(math.Round(a.Radius()))))
		return
	}
	if isAxisRect(c) {
		e.writeRect(b, c.Bounds())
		return
	}
	b.WriteString("CT\n")
	fmt.Fprintf(b, "OB %s I\n", e.f.XY(c.Edges[0].Start))
	for _, ed := range c.Edges {
		if ed.Kind == geom.ArcEdge {
			if center, cw, ok := arcCenter(ed); ok {
				fmt.Fprintf(b, "OC %s %s %s\n", e.f.XY(ed.End), e.f.XY(center), yn(cw))
				continue
			}
		}
		fmt.Fprintf(b, "OS %s\n", e.f.XY(ed.End))
	}
	b.WriteString("OE\nCE\n")
}

func isAxisRect(c geom.Chain) bool {
	if len(c.Edges) != 4 {
		return false
	}
	for _, e := range c.Edges {
		if e.Kind != geom.LineEdge || (e.Start.X != e.End.X && e.Start.Y != e.End.Y) {
			return false
		}
	}
	return true
}
