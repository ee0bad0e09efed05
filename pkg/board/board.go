// Package board is the in-memory board description consumed by the 3D and
// ODB++ exporters.
//
// Everything is expressed in board units (nanometres, int64) with KiCad's
// Y-down orientation. Footprint children (pads, graphics) carry absolute
// positions and angles so exporters never need to walk placement
// transforms. A Board is built once per export by a reader such as
// pkg/kicad/pcb and is treated as read-only afterwards.
package board

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Board is a fully resolved board
type Board struct {
	// Name is the board file base name without extension
	Name string
	// FileName is the path the board was read from
	FileName string

	Title TitleBlock

	// Thickness is the nominal board thickness from the general section
	Thickness   int64
	CopperCount int
	// Enabled holds every layer declared by the board
	Enabled LayerSet
	Stackup Stackup
	// HolePlatingThickness is the copper barrel thickness of plated holes
	HolePlatingThickness int64

	// Outline is the Edge.Cuts outline. It is empty when no closed contour
	// could be built.
	Outline geom.PolySet

	AuxOrigin  geom.Point
	GridOrigin geom.Point

	Nets       []Net
	Footprints []*Footprint
	Tracks     []Track
	Vias       []Via
	Zones      []Zone
	Drawings   []Drawing
}

// TitleBlock carries the board title block fields
type TitleBlock struct {
	Title    string
	Date     string
	Revision string
	Company  string
}

// Net is an electrical net. Code 0 is the unconnected net.
type Net struct {
	Code int
	Name string
}

// NetName returns the name of net code, or "" for unknown codes
func (b *Board) NetName(code int) string {
	for _, n := range b.Nets {
		if n.Code == code {
			return n.Name
		}
	}
	return ""
}

// CopperSet returns the copper layers of the board, front to back
func (b *Board) CopperSet() LayerSet {
	if c := b.Enabled.Copper(); c != 0 {
		return c
	}
	return CopperLayers(b.CopperCount)
}

// Pads returns every pad of every footprint
func (b *Board) Pads() []*Pad {
	var out []*Pad
	for _, fp := range b.Footprints {
		out = append(out, fp.Pads...)
	}
	return out
}

// Bounds returns the outline bounding box, or the box of all copper items
// when the board has no outline
func (b *Board) Bounds() geom.Rect {
	if r := b.Outline.Bounds(); !r.Empty() {
		return r
	}
	r := geom.Rect{}
	for _, p := range b.Pads() {
		r.Merge(p.Pos)
	}
	for _, t := range b.Tracks {
		r.Merge(t.Start)
		r.Merge(t.End)
	}
	for _, v := range b.Vias {
		r.Merge(v.Pos)
	}
	return r
}

// Side tells which face of the board a footprint sits on
type Side int

const (
	Front Side = iota
	Back
)

func (s Side) String() string {
	if s == Back {
		return "bottom"
	}
	return "top"
}

// FootprintAttr holds the fabrication attributes of a footprint
type FootprintAttr struct {
	SMD            bool
	ThroughHole    bool
	BoardOnly      bool
	ExcludeFromBOM bool
	ExcludeFromPos bool
	DNP            bool
}

// Unspecified reports whether the footprint is neither SMD nor THT
func (a FootprintAttr) Unspecified() bool {
	return !a.SMD && !a.ThroughHole
}

// Footprint is a placed component
type Footprint struct {
	UUID      uuid.UUID
	Reference string
	Value     string
	// LibID is "library:name"
	LibID string
	Pos   geom.Point
	// Angle is the placement rotation in degrees
	Angle float64
	Side  Side
	Attr  FootprintAttr
	Pads  []*Pad
	// Graphics holds footprint drawings on technical layers
	Graphics []Drawing
	Models   []Model
	// Properties holds the remaining footprint fields
	Properties map[string]string
}

// Model is a 3D model reference attached to a footprint
type Model struct {
	Path string
	// Offset is in millimetres, Rotation in degrees
	Offset   mgl64.Vec3
	Scale    mgl64.Vec3
	Rotation mgl64.Vec3
	Show     bool
	Opacity  float64
}

// TrackKind tells straight tracks from arc tracks
type TrackKind int

const (
	Segment TrackKind = iota
	ArcTrack
)

// Track is a copper track
type Track struct {
	Kind  TrackKind
	Start geom.Point
	Mid   geom.Point
	End   geom.Point
	Width int64
	Layer LayerID
	Net   int
}

// ViaType distinguishes through, blind/buried and micro vias
type ViaType int

const (
	ViaThrough ViaType = iota
	ViaBlindBuried
	ViaMicro
)

// Via is a plated hole connecting a copper layer span
type Via struct {
	Pos      geom.Point
	Diameter int64
	Drill    int64
	Top      LayerID
	Bottom   LayerID
	Type     ViaType
	Net      int
	// RemoveUnconnected mirrors the via's zone_layer_connections flag
	RemoveUnconnected bool
}

// Layers returns the copper span of the via
func (v Via) Layers(copper LayerSet) LayerSet {
	var s LayerSet
	in := false
	for _, l := range copper.Layers() {
		if l == v.Top {
			in = true
		}
		if in {
			s = s.With(l)
		}
		if l == v.Bottom {
			break
		}
	}
	return s
}

// Zone is a filled copper or keepout area. Fills holds the computed
// filled polygons per copper layer.
type Zone struct {
	Name     string
	Net      int
	Layers   LayerSet
	Priority int
	Outline  geom.Polygon
	Fills    map[LayerID]geom.PolySet
	Keepout  bool
}

// DrawingShape is the geometric kind of a drawing
type DrawingShape int

const (
	DrawSegment DrawingShape = iota
	DrawArc
	DrawCircle
	DrawRect
	DrawPoly
)

// Drawing is a graphic item on a technical layer. Filled closed shapes
// cover their interior, other shapes are stroked with Width.
type Drawing struct {
	Shape  DrawingShape
	Layer  LayerID
	Start  geom.Point
	Mid    geom.Point
	End    geom.Point
	Points []geom.Point
	Width  int64
	Filled bool
}

// Polygons returns the area covered by the drawing
func (d Drawing) Polygons() geom.PolySet {
	const minLen = 1000
	switch d.Shape {
	case DrawSegment:
		return geom.PolySet{{Outline: geom.ThickSegmentChain(d.Start, d.End, d.Width, minLen)}}
	case DrawCircle:
		r := int64(d.Start.Distance(d.End))
		if d.Filled {
			return geom.PolySet{{Outline: geom.CircleChain(d.Start, r+d.Width/2)}}
		}
		if r <= d.Width/2 {
			return geom.PolySet{{Outline: geom.CircleChain(d.Start, r+d.Width/2)}}
		}
		return geom.PolySet{{
			Outline: geom.CircleChain(d.Start, r+d.Width/2),
			Holes:   []geom.Chain{geom.CircleChain(d.Start, r-d.Width/2)},
		}}
	case DrawArc:
		return strokePolyline(geom.ArcThrough(d.Start, d.Mid, d.End).Arc().Polyline(float64(d.Width)/20+500), d.Width, false)
	case DrawRect:
		pts := []geom.Point{d.Start, {X: d.End.X, Y: d.Start.Y}, d.End, {X: d.Start.X, Y: d.End.Y}}
		if d.Filled {
			return geom.PolySet{{Outline: geom.NewChain(pts)}}
		}
		return strokePolyline(pts, d.Width, true)
	case DrawPoly:
		if d.Filled {
			return geom.PolySet{{Outline: geom.NewChain(d.Points)}}
		}
		return strokePolyline(d.Points, d.Width, true)
	}
	return nil
}

// strokePolyline returns one thick segment outline per segment
func strokePolyline(pts []geom.Point, width int64, closed bool) geom.PolySet {
	var out geom.PolySet
	n := len(pts) - 1
	if closed {
		n = len(pts)
	}
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%len(pts)]
		out = append(out, geom.Polygon{Outline: geom.ThickSegmentChain(a, b, width, 1000)})
	}
	return out
}
