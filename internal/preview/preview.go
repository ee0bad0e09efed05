// Package preview draws a quick SVG picture of a board: outline, zones,
// tracks, pads, vias and drills of one side, in millimetres.
package preview

import (
	"fmt"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Options select what is drawn
type Options struct {
	// Side is the face looked at. The back side is drawn mirrored.
	Side   board.Side
	Tracks bool
	Zones  bool
	// Margin is added around the board, in board units
	Margin int64
}

// DefaultOptions draws everything on the front side with a 1 mm margin
func DefaultOptions() Options {
	return Options{Side: board.Front, Tracks: true, Zones: true, Margin: geom.UnitsPerMM}
}

// chord error used to flatten arcs, 5 um
const flatten = 5_000

const (
	styleBoard  = "fill:#1f4d2c;fill-rule:evenodd;stroke:#d0d0d0;stroke-width:50"
	styleZone   = "fill-rule:evenodd;fill-opacity:0.45"
	styleTrack  = "fill:none;stroke-linecap:round;stroke-opacity:0.9"
	stylePad    = "fill:#c9a33c"
	styleVia    = "fill:#b0b0b0"
	styleDrill  = "fill:#101010"
	copperFront = "#c83434"
	copperBack  = "#4d7fc4"
)

// Render writes the SVG picture of b to w
func Render(w io.Writer, b *board.Board, opt Options) error {
	bounds := b.Bounds()
	if bounds.Empty() {
		return fmt.Errorf("board %q has nothing to draw", b.Name)
	}
	bounds = bounds.Inflate(opt.Margin)
	p := &painter{
		ew:     &errWriter{w: w},
		bounds: bounds,
		mirror: opt.Side == board.Back,
	}
	p.canvas = svg.New(p.ew)

	outer, copper := board.FCu, copperFront
	if p.mirror {
		outer, copper = board.BCu, copperBack
	}

	wmm := int(math.Ceil(geom.ToMM(bounds.Width())))
	hmm := int(math.Ceil(geom.ToMM(bounds.Height())))
	p.canvas.StartviewUnit(wmm, hmm, "mm", 0, 0, um(bounds.Width()), um(bounds.Height()))
	p.canvas.Title(b.Name)

	p.canvas.Gid("outline")
	for _, poly := range b.Outline {
		p.polygon(poly, styleBoard)
	}
	p.canvas.Gend()

	if opt.Zones {
		p.canvas.Gstyle(styleZone + ";fill:" + copper)
		for _, z := range b.Zones {
			for _, poly := range z.Fills[outer] {
				p.polygon(poly, "")
			}
		}
		p.canvas.Gend()
	}

	if opt.Tracks {
		p.canvas.Gstyle(styleTrack + ";stroke:" + copper)
		for _, t := range b.Tracks {
			if t.Layer != outer {
				continue
			}
			p.track(t)
		}
		p.canvas.Gend()
	}

	p.canvas.Gstyle(stylePad)
	for _, pad := range b.Pads() {
		if !pad.FlashedOn(outer) {
			continue
		}
		for _, poly := range pad.SubShapes() {
			p.polygon(poly, "")
		}
	}
	p.canvas.Gend()

	p.canvas.Gstyle(styleVia)
	for _, v := range b.Vias {
		if !v.Layers(b.CopperSet()).Has(outer) {
			continue
		}
		x, y := p.xy(v.Pos)
		p.canvas.Circle(x, y, um(v.Diameter/2))
	}
	p.canvas.Gend()

	p.canvas.Gstyle(styleDrill)
	for _, pad := range b.Pads() {
		if !pad.HasHole() {
			continue
		}
		a, c, width := pad.HoleSegment()
		if a == c {
			x, y := p.xy(a)
			p.canvas.Circle(x, y, um(width/2))
			continue
		}
		x1, y1 := p.xy(a)
		x2, y2 := p.xy(c)
		p.canvas.Line(x1, y1, x2, y2, fmt.Sprintf("stroke:#101010;stroke-linecap:round;stroke-width:%d", um(width)))
	}
	for _, v := range b.Vias {
		x, y := p.xy(v.Pos)
		p.canvas.Circle(x, y, um(v.Drill/2))
	}
	p.canvas.Gend()

	p.canvas.End()
	return p.ew.err
}

// WriteFile renders b into the file at path
func WriteFile(path string, b *board.Board, opt Options) error {
	return fsutil.WriteAtomic(path, "$tempfile$.svg", func(w io.Writer) error {
		return Render(w, b, opt)
	})
}

type painter struct {
	canvas *svg.SVG
	ew     *errWriter
	bounds geom.Rect
	mirror bool
}

// xy maps a board point into the viewBox, in microns
func (p *painter) xy(pt geom.Point) (int, int) {
	x := pt.X - p.bounds.Min.X
	if p.mirror {
		x = p.bounds.Max.X - pt.X
	}
	return um(x), um(pt.Y - p.bounds.Min.Y)
}

func (p *painter) polygon(poly geom.Polygon, style string) {
	var d strings.Builder
	p.contour(&d, poly.Outline)
	for _, h := range poly.Holes {
		p.contour(&d, h)
	}
	if d.Len() == 0 {
		return
	}
	if style == "" {
		p.canvas.Path(d.String())
		return
	}
	p.canvas.Path(d.String(), style)
}

func (p *painter) contour(d *strings.Builder, c geom.Chain) {
	pts := c.Polyline(flatten)
	if len(pts) < 3 {
		return
	}
	for i, pt := range pts {
		x, y := p.xy(pt)
		cmd := 'L'
		if i == 0 {
			cmd = 'M'
		}
		fmt.Fprintf(d, "%c%d %d ", cmd, x, y)
	}
	d.WriteString("Z ")
}

func (p *painter) track(t board.Track) {
	style := fmt.Sprintf("stroke-width:%d", um(t.Width))
	if t.Kind == board.ArcTrack {
		pts := geom.ArcThrough(t.Start, t.Mid, t.End).Arc().Polyline(flatten)
		xs, ys := make([]int, len(pts)), make([]int, len(pts))
		for i, pt := range pts {
			xs[i], ys[i] = p.xy(pt)
		}
		p.canvas.Polyline(xs, ys, style)
		return
	}
	x1, y1 := p.xy(t.Start)
	x2, y2 := p.xy(t.End)
	p.canvas.Line(x1, y1, x2, y2, style)
}

// um converts board units to whole microns
func um(v int64) int {
	return int((v + 500) / 1000)
}

// errWriter keeps the first write error, svgo does not report them
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}
