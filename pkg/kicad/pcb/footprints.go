package pcb

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// footprint reads a placed component. Children are stored relative to the
// footprint in the file and are moved to absolute board coordinates here.
// Expected format: (footprint "library:name" (layer "F.Cu") (uuid ...) (at x y [angle]) ...)
func (r *reader) footprint(n *kicadsexp.List) (*board.Footprint, error) {
	fp := &board.Footprint{LibID: n.Str(1), Properties: map[string]string{}}

	layer, err := layerOf(n)
	if err != nil {
		return nil, err
	}
	if layer == board.BCu {
		fp.Side = board.Back
	}
	if fp.Pos, fp.Angle, err = placement(n); err != nil {
		return nil, err
	}

	for _, p := range n.Children("property") {
		switch key, val := p.Str(1), p.Str(2); key {
		case "Reference":
			fp.Reference = val
		case "Value":
			fp.Value = val
		default:
			fp.Properties[key] = val
		}
	}
	// KiCad 6 and 7 keep the reference and value in fp_text
	for _, t := range n.Children("fp_text") {
		switch t.Str(1) {
		case "reference":
			if fp.Reference == "" {
				fp.Reference = t.Str(2)
			}
		case "value":
			if fp.Value == "" {
				fp.Value = t.Str(2)
			}
		}
	}

	fp.UUID = r.footprintUUID(n, fp)
	fp.Attr = footprintAttr(n)

	for _, c := range n.Lists() {
		switch c.Key() {
		case "pad":
			pad, err := r.pad(c, fp)
			if err != nil {
				r.skip(c, fmt.Errorf("footprint %s: %w", fp.Reference, err))
				continue
			}
			fp.Pads = append(fp.Pads, pad)
		case "fp_line", "fp_arc", "fp_circle", "fp_rect", "fp_poly":
			d, edges, err := parseDrawing(c)
			if err != nil {
				r.skip(c, fmt.Errorf("footprint %s: %w", fp.Reference, err))
				continue
			}
			if d.Layer == board.EdgeCuts {
				r.edges = append(r.edges, placeEdges(edges, fp.Pos, fp.Angle)...)
			}
			fp.Graphics = append(fp.Graphics, placeDrawing(d, fp.Pos, fp.Angle))
		case "model":
			m, err := parseModel(c)
			if err != nil {
				r.skip(c, fmt.Errorf("footprint %s: %w", fp.Reference, err))
				continue
			}
			fp.Models = append(fp.Models, m)
		}
	}
	return fp, nil
}

// footprintUUID reads (uuid ...) or the older (tstamp ...). Footprints
// without a usable id get one derived from their library id and reference
// so repeated exports stay stable.
func (r *reader) footprintUUID(n *kicadsexp.List, fp *board.Footprint) uuid.UUID {
	for _, key := range []string{"uuid", "tstamp"} {
		s := childString(n, key)
		if s == "" {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	r.p.log.Debug("footprint without uuid", zap.String("ref", fp.Reference), zap.Int("line", n.Line))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fp.LibID+"/"+fp.Reference+"/"+fp.Pos.String()))
}

// footprintAttr reads (attr smd|through_hole [board_only] [exclude_from_pos_files] [exclude_from_bom] [dnp])
func footprintAttr(n *kicadsexp.List) board.FootprintAttr {
	var a board.FootprintAttr
	c, ok := n.Child("attr")
	if !ok {
		return a
	}
	a.SMD = c.HasSymbol("smd")
	a.ThroughHole = c.HasSymbol("through_hole")
	a.BoardOnly = c.HasSymbol("board_only")
	a.ExcludeFromBOM = c.HasSymbol("exclude_from_bom")
	a.ExcludeFromPos = c.HasSymbol("exclude_from_pos_files")
	a.DNP = c.HasSymbol("dnp") || n.Flag("dnp")
	return a
}

var padAttrs = map[string]board.PadAttr{
	"thru_hole":    board.PadPTH,
	"smd":          board.PadSMD,
	"connect":      board.PadConnector,
	"np_thru_hole": board.PadNPTH,
}

var padShapes = map[string]board.PadShape{
	"circle":    board.PadCircle,
	"rect":      board.PadRect,
	"oval":      board.PadOval,
	"trapezoid": board.PadTrapezoid,
	"roundrect": board.PadRoundRect,
	"custom":    board.PadCustom,
}

var chamferCorners = map[string]int{
	"top_left":     geom.ChamferTopLeft,
	"top_right":    geom.ChamferTopRight,
	"bottom_left":  geom.ChamferBottomLeft,
	"bottom_right": geom.ChamferBottomRight,
}

// pad reads a footprint pad. The pad position is footprint-local, its angle
// already absolute.
// Expected format: (pad "number" type shape (at x y [angle]) (size w h) (layers ...) (net n "name") ...)
func (r *reader) pad(n *kicadsexp.List, fp *board.Footprint) (*board.Pad, error) {
	pad := &board.Pad{Number: n.Str(1), Footprint: fp.Reference}

	attr, ok := padAttrs[n.Str(2)]
	if !ok {
		return nil, fmt.Errorf("line %d: unknown pad type %q", n.Line, n.Str(2))
	}
	pad.Attr = attr
	shape, ok := padShapes[n.Str(3)]
	if !ok {
		return nil, fmt.Errorf("line %d: unknown pad shape %q", n.Line, n.Str(3))
	}
	pad.Shape = shape

	local, angle, err := placement(n)
	if err != nil {
		return nil, err
	}
	pad.Pos = place(local, fp.Pos, fp.Angle)
	pad.Angle = angle

	if pad.Size, err = childPoint(n, "size"); err != nil {
		return nil, err
	}
	if c, ok := n.Child("rect_delta"); ok {
		if pad.Delta, err = pointOf(c); err != nil {
			return nil, err
		}
	}
	pad.RoundRatio = childFloat(n, "roundrect_rratio", 0)
	pad.ChamferRatio = childFloat(n, "chamfer_ratio", 0)
	if c, ok := n.Child("chamfer"); ok {
		for i := 1; i < c.Len(); i++ {
			pad.Chamfer |= chamferCorners[c.Str(i)]
		}
	}
	if pad.Chamfer != 0 && pad.ChamferRatio > 0 && (shape == board.PadRoundRect || shape == board.PadRect) {
		pad.Shape = board.PadChamferedRect
	}

	if d, ok := n.Child("drill"); ok {
		if err := readDrill(d, pad); err != nil {
			return nil, err
		}
	}

	pad.Layers = layerList(n, r.b.Enabled)
	pad.Net, pad.NetName = r.netOf(n)
	if pad.MaskMargin, err = childMM(n, "solder_mask_margin", 0); err != nil {
		return nil, err
	}
	if pad.PasteMargin, err = childMM(n, "solder_paste_margin", 0); err != nil {
		return nil, err
	}

	if pad.Shape == board.PadCustom {
		pad.AnchorShape = board.PadCircle
		if opts, ok := n.Child("options"); ok && childString(opts, "anchor") == "rect" {
			pad.AnchorShape = board.PadRect
		}
		if prims, ok := n.Child("primitives"); ok {
			pad.Primitives = r.primitives(prims)
		}
	}
	return pad, nil
}

// readDrill reads (drill d), (drill oval w h) and an optional (offset x y)
func readDrill(d *kicadsexp.List, pad *board.Pad) error {
	i := 1
	if d.Str(1) == "oval" {
		pad.DrillShape = board.DrillOblong
		i = 2
	}
	if _, ok := d.Atom(i); ok {
		x, err := mmAt(d, i)
		if err != nil {
			return err
		}
		pad.Drill = geom.Point{X: x, Y: x}
		if _, ok := d.Atom(i + 1); ok {
			if pad.Drill.Y, err = mmAt(d, i+1); err != nil {
				return err
			}
		}
	}
	if off, ok := d.Child("offset"); ok {
		var err error
		if pad.DrillOffset, err = pointOf(off); err != nil {
			return err
		}
	}
	return nil
}

// primitives reads custom pad shapes, relative to the pad and unrotated
func (r *reader) primitives(n *kicadsexp.List) geom.PolySet {
	var out geom.PolySet
	for _, c := range n.Lists() {
		width, err := strokeWidth(c)
		if err != nil {
			r.skip(c, err)
			continue
		}
		d := board.Drawing{Width: width, Filled: filled(c)}
		d, _, err = readShape(c, d)
		if err != nil {
			r.skip(c, err)
			continue
		}
		if d.Shape == board.DrawPoly && d.Width == 0 {
			d.Filled = true
		}
		out = append(out, d.Polygons()...)
	}
	return out
}

// parseModel reads a 3D model reference.
// Expected format: (model "path" (offset (xyz x y z)) (scale (xyz 1 1 1)) (rotate (xyz 0 0 0)) [hide] [(opacity a)])
// Files from KiCad 5 store the offset as (at (xyz ...)) in inches.
func parseModel(n *kicadsexp.List) (board.Model, error) {
	m := board.Model{
		Path:    n.Str(1),
		Show:    !n.Flag("hide"),
		Opacity: childFloat(n, "opacity", 1),
	}
	if m.Path == "" {
		return m, fmt.Errorf("line %d: model without path", n.Line)
	}

	var err error
	if _, ok := n.Child("offset"); ok {
		if m.Offset, err = vec3(n, "offset", mgl64.Vec3{}); err != nil {
			return m, err
		}
	} else if _, ok := n.Child("at"); ok {
		at, err := vec3(n, "at", mgl64.Vec3{})
		if err != nil {
			return m, err
		}
		m.Offset = at.Mul(25.4)
	}
	if m.Scale, err = vec3(n, "scale", mgl64.Vec3{1, 1, 1}); err != nil {
		return m, err
	}
	if m.Rotation, err = vec3(n, "rotate", mgl64.Vec3{}); err != nil {
		return m, err
	}
	return m, nil
}
