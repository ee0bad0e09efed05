package odb

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Toeprint places one pin of a component on the board
type Toeprint struct {
	Pin    int
	Name   string
	Pos    geom.Point
	Angle  float64
	Net    int
	Subnet int
}

// Component is one CMP record with its toeprints
type Component struct {
	Index     int
	Package   *Package
	Footprint *board.Footprint
	Attrs     []Attr
	Toeprints []Toeprint
}

// Components collects the placements of one board side
type Components struct {
	f     Formatter
	Side  board.Side
	Attrs *AttrTable
	list  []*Component
}

// NewComponents returns an empty component layer for side
func NewComponents(f Formatter, side board.Side) *Components {
	return &Components{f: f, Side: side, Attrs: NewAttrTable("Component")}
}

// Add records fp with its package and returns the component
func (c *Components) Add(fp *board.Footprint, pkg *Package) *Component {
	mount := MountOther
	switch {
	case fp.Attr.SMD:
		mount = MountSMT
	case fp.Attr.ThroughHole:
		mount = MountTHMT
	}
	cmp := &Component{
		Index:     len(c.list),
		Package:   pkg,
		Footprint: fp,
		Attrs:     []Attr{c.Attrs.Option(AttrCompMount, mount)},
	}
	if fp.Attr.DNP {
		cmp.Attrs = append(cmp.Attrs, c.Attrs.Bool(AttrNoPop))
	}
	c.list = append(c.list, cmp)
	return cmp
}

// Len returns the number of components
func (c *Components) Len() int { return len(c.list) }

// rotation returns the clockwise job rotation of a footprint. Back side
// parts are mirrored first, which turns the board rotation around.
func rotation(fp *board.Footprint) (angle float64, mirror string) {
	if fp.Side == board.Back {
		return fp.Angle, "M"
	}
	return -fp.Angle, "N"
}

// WriteTo writes the components file
func (c *Components) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UNITS=%s\n", c.f.Units)
	c.Attrs.WriteTo(&b)
	for _, cmp := range c.list {
		fp := cmp.Footprint
		angle, mirror := rotation(fp)
		ref := token(fp.Reference)
		if ref == "" {
			ref = fmt.Sprintf("cmp%d", cmp.Index)
		}
		part := token(fp.Value)
		if part == "" {
			part = cmp.Package.Name
		}
		fmt.Fprintf(&b, "# CMP %d\n", cmp.Index)
		fmt.Fprintf(&b, "CMP %d %s %s %s %s %s%s\n", cmp.Package.Index, c.f.XY(fp.Pos), c.f.Angle(angle), mirror,
			ref, part, attrSuffix(cmp.Attrs))
		fmt.Fprintf(&b, "PRP VALUE %s\n", quote(fp.Value))
		keys := make([]string, 0, len(fp.Properties))
		for k := range fp.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := fp.Properties[k]; v != "" {
				fmt.Fprintf(&b, "PRP %s %s\n", token(k), quote(v))
			}
		}
		for _, t := range cmp.Toeprints {
			ta := -t.Angle
			if fp.Side == board.Back {
				ta = t.Angle
			}
			fmt.Fprintf(&b, "TOP %d %s %s %s %d %d %s\n", t.Pin, c.f.XY(t.Pos), c.f.Angle(ta), mirror,
				t.Net, t.Subnet, token(t.Name))
		}
		b.WriteString("#\n")
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
