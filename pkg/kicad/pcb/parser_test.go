package pcb

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

const demoBoard = `(kicad_pcb (version 20240108) (generator "pcbnew") (generator_version "8.0")
  (general (thickness 1.6) (legacy_teardrops no))
  (paper "A4")
  (title_block (title "Demo Board") (date "2024-05-01") (rev "B") (company "OpenTraceLab"))
  (layers
    (0 "F.Cu" signal)
    (1 "In1.Cu" signal)
    (2 "In2.Cu" signal)
    (31 "B.Cu" signal)
    (36 "B.SilkS" user "B.Silkscreen")
    (37 "F.SilkS" user "F.Silkscreen")
    (38 "B.Mask" user)
    (39 "F.Mask" user)
    (44 "Edge.Cuts" user)
    (50 "User.1" user))
  (setup
    (stackup
      (layer "F.SilkS" (type "Top Silk Screen"))
      (layer "F.Mask" (type "Top Solder Mask") (thickness 0.01))
      (layer "F.Cu" (type "copper") (thickness 0.035))
      (layer "dielectric 1" (type "prepreg") (thickness 0.1) (material "FR4") (epsilon_r 4.5) (loss_tangent 0.02)
        addsublayer (thickness 0.2) (material "FR4") (epsilon_r 4.4) (loss_tangent 0.02))
      (layer "In1.Cu" (type "copper") (thickness 0.035))
      (layer "dielectric 2" (type "core") (thickness 0.9) (material "FR4"))
      (layer "In2.Cu" (type "copper") (thickness 0.035))
      (layer "dielectric 3" (type "prepreg") (thickness 0.2))
      (layer "B.Cu" (type "copper") (thickness 0.035))
      (layer "B.Mask" (type "Bottom Solder Mask") (thickness 0.01))
      (layer "B.SilkS" (type "Bottom Silk Screen"))
      (copper_finish "ENIG"))
    (aux_axis_origin 100 80)
    (grid_origin 90 70))
  (net 0 "")
  (net 1 "GND")
  (net 2 "VCC")
  (footprint "Resistor_SMD:R_0603_1608Metric" (layer "F.Cu") (uuid "5b3c0b8e-8f6a-4b7e-9d1c-2a0e7f3f4a11") (at 110 90 90)
    (property "Reference" "R1" (at 0 -1.43 90) (layer "F.SilkS"))
    (property "Value" "10k" (at 0 1.43 90) (layer "F.Fab"))
    (property "MPN" "RC0603FR-0710KL")
    (attr smd)
    (fp_line (start -0.8 -0.4) (end 0.8 -0.4) (stroke (width 0.12) (type solid)) (layer "F.SilkS"))
    (pad "1" smd roundrect (at -0.825 0 90) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (roundrect_rratio 0.25) (net 1 "GND"))
    (pad "2" smd roundrect (at 0.825 0 90) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (roundrect_rratio 0.25) (net "SIG"))
    (model "${KICAD8_3DMODEL_DIR}/Resistor_SMD.3dshapes/R_0603_1608Metric.wrl"
      (offset (xyz 0 0 0)) (scale (xyz 1 1 1)) (rotate (xyz 0 0 0))))
  (footprint "Connector:Pin" (layer "B.Cu") (tstamp "not-a-uuid") (at 105 85)
    (fp_text reference "J1" (at 0 0) (layer "B.SilkS"))
    (attr through_hole exclude_from_bom dnp)
    (pad "1" thru_hole rect (at 0 0) (size 1.7 1.7) (drill 1.0 (offset 0.1 0)) (layers "*.Cu" "*.Mask")
      (chamfer_ratio 0.2) (chamfer top_left) (net 2 "VCC"))
    (pad "2" thru_hole oval (at 2.54 0) (size 1.7 2.5) (drill oval 1.0 1.6) (layers "*.Cu" "*.Mask") (solder_mask_margin 0.05))
    (pad "" np_thru_hole circle (at 5 0) (size 3 3) (drill 3) (layers "F&B.Cu" "*.Mask"))
    (pad "3" smd custom (at 0 5) (size 1 1) (layers "B.Cu")
      (options (clearance outline) (anchor rect))
      (primitives
        (gr_poly (pts (xy 0 0) (xy 2 0) (xy 2 1)) (width 0) (fill yes))
        (gr_circle (center 0 0) (end 0.5 0) (width 0) (fill yes))))
    (model "Pin.step" (offset (xyz 0 0 1)) (scale (xyz 1 1 1)) (rotate (xyz 0 0 90)) hide (opacity 0.5)))
  (gr_rect (start 100 80) (end 130 100) (stroke (width 0.1) (type default)) (fill none) (layer "Edge.Cuts"))
  (gr_circle (center 125 95) (end 126 95) (stroke (width 0.1) (type default)) (fill none) (layer "Edge.Cuts"))
  (gr_line (start 101 81) (end 104 81) (stroke (width 0.15) (type default)) (layer "F.SilkS"))
  (gr_text "demo" (at 110 95) (layer "F.SilkS"))
  (segment (start 110 90) (end 120 90) (width 0.25) (layer "F.Cu") (net 1))
  (arc (start 120 90) (mid 122.9289 91.2929) (end 124 94) (width 0.25) (layer "F.Cu") (net 1))
  (segment (start 1 1) (end 2 2) (width 0.25) (layer "F.SilkS") (net 0))
  (via (at 115 85) (size 0.6) (drill 0.3) (layers "F.Cu" "B.Cu") (net 1))
  (via blind (at 116 85) (size 0.6) (drill 0.3) (layers "In1.Cu" "F.Cu") (net 2))
  (via micro (at 117 85) (size 0.3) (drill 0.1) (layers "F.Cu" "In1.Cu") (net 2))
  (zone (net 1) (net_name "GND") (layers "F.Cu" "B.Cu") (name "gnd") (priority 2)
    (polygon (pts (xy 100 80) (xy 130 80) (xy 130 100) (xy 100 100)))
    (filled_polygon (layer "F.Cu") (pts (xy 101 81) (xy 129 81) (xy 129 99) (xy 101 99)))
    (filled_polygon (layer "B.Cu") (pts (xy 101 81) (xy 129 81) (xy 129 99)))
    (filled_polygon (layer "B.Cu") (pts (xy 102 82) (xy 103 82) (xy 103 83))))
  (zone (net 0) (net_name "") (layer "In1.Cu") (name "keep")
    (keepout (tracks not_allowed) (vias not_allowed))
    (polygon (pts (xy 105 85) (xy 106 85) (xy 106 86) (xy 105 86))))
)`

func parseDemo(t *testing.T) *board.Board {
	t.Helper()
	b, err := NewParser(nil).Parse(strings.NewReader(demoBoard))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	return b
}

func findFootprint(t *testing.T, b *board.Board, ref string) *board.Footprint {
	t.Helper()
	for _, fp := range b.Footprints {
		if fp.Reference == ref {
			return fp
		}
	}
	t.Fatalf("footprint %s not found", ref)
	return nil
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:  "KiCad 6.0",
			input: "(kicad_pcb (version 20211014) (generator pcbnew))",
		},
		{
			name:  "KiCad 6.0 with host",
			input: `(kicad_pcb (version 20221018) (host pcbnew "(6.0.10)"))`,
		},
		{
			name:    "old version (KiCad 5)",
			input:   "(kicad_pcb (version 20171130))",
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "schematic",
			input:   "(kicad_sch (version 20230121))",
			wantErr: ErrNotABoard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).Parse(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Parse() unexpected error: %v", err)
			}
		})
	}

	if _, err := NewParser(nil).Parse(strings.NewReader("(kicad_pcb (generator pcbnew))")); err == nil {
		t.Error("missing version must fail")
	}
}

func TestParseGeneral(t *testing.T) {
	b := parseDemo(t)

	want := board.TitleBlock{Title: "Demo Board", Date: "2024-05-01", Revision: "B", Company: "OpenTraceLab"}
	if b.Title != want {
		t.Errorf("Title = %+v, want %+v", b.Title, want)
	}
	if b.Thickness != 1_600_000 {
		t.Errorf("Thickness = %d", b.Thickness)
	}
	if b.CopperCount != 4 {
		t.Errorf("CopperCount = %d, want 4", b.CopperCount)
	}
	if !b.Enabled.Has(board.EdgeCuts) || !b.Enabled.Has(board.FSilkS) {
		t.Errorf("Enabled = %s", b.Enabled)
	}
	if b.AuxOrigin != geom.PtMM(100, 80) || b.GridOrigin != geom.PtMM(90, 70) {
		t.Errorf("origins = %s %s", b.AuxOrigin, b.GridOrigin)
	}
	if b.HolePlatingThickness != board.DefaultHolePlatingThickness {
		t.Errorf("HolePlatingThickness = %d", b.HolePlatingThickness)
	}
}

func TestParseStackup(t *testing.T) {
	b := parseDemo(t)
	st := b.Stackup

	if len(st.Items) != 11 {
		t.Fatalf("got %d stackup items, want 11", len(st.Items))
	}
	if n := len(st.Copper()); n != 4 {
		t.Errorf("copper entries = %d, want 4", n)
	}

	d := st.Items[3]
	if d.Type != board.StackupDielectric || d.DielectricType != board.DielectricPrepreg {
		t.Fatalf("item 3 = %+v, want a prepreg", d)
	}
	if d.Thickness != 100_000 || d.SublayerCount() != 2 || d.TotalThickness() != 300_000 {
		t.Errorf("dielectric 1 = %+v", d)
	}
	if d.Sublayers[0].EpsilonR != 4.4 || d.Sublayers[0].Material != "FR4" {
		t.Errorf("sublayer = %+v", d.Sublayers[0])
	}
	if got := st.Thickness(); got != 1_540_000 {
		t.Errorf("Thickness() = %d, want 1540000", got)
	}
	if m, ok := st.Find(board.FMask); !ok || m.Thickness != 10_000 {
		t.Errorf("F.Mask entry = %+v, %v", m, ok)
	}
}

func TestDefaultStackup(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "no stackup",
			input: `(kicad_pcb (version 20221018) (general (thickness 1.2)) (layers (0 "F.Cu" signal) (31 "B.Cu" signal)))`,
		},
		{
			name: "stackup with the wrong copper count",
			input: `(kicad_pcb (version 20221018) (general (thickness 1.2)) (layers (0 "F.Cu" signal) (31 "B.Cu" signal))
				(setup (stackup (layer "F.Cu" (type "copper") (thickness 0.035)))))`,
		},
	}

	want := board.DefaultStackup(2, 1_200_000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewParser(nil).Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, b.Stackup); diff != "" {
				t.Errorf("stackup mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseNets(t *testing.T) {
	b := parseDemo(t)

	want := []board.Net{
		{Code: 0, Name: ""},
		{Code: 1, Name: "GND"},
		{Code: 2, Name: "VCC"},
		{Code: 3, Name: "SIG"},
	}
	if diff := cmp.Diff(want, b.Nets); diff != "" {
		t.Errorf("nets mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOutline(t *testing.T) {
	b := parseDemo(t)

	if len(b.Outline) != 1 {
		t.Fatalf("got %d outline polygons, want 1", len(b.Outline))
	}
	if n := len(b.Outline[0].Holes); n != 1 {
		t.Errorf("got %d outline holes, want 1", n)
	}
	r := b.Outline.Bounds()
	if r.Min != geom.PtMM(100, 80) || r.Max != geom.PtMM(130, 100) {
		t.Errorf("outline bounds = %s..%s", r.Min, r.Max)
	}

	open := `(kicad_pcb (version 20221018)
		(gr_line (start 0 0) (end 10 0) (layer "Edge.Cuts") (width 0.1))
		(gr_line (start 10 0) (end 10 10) (layer "Edge.Cuts") (width 0.1)))`
	ob, err := NewParser(nil).Parse(strings.NewReader(open))
	if err != nil {
		t.Fatalf("an open outline must not fail the parse: %v", err)
	}
	if len(ob.Outline) != 0 {
		t.Errorf("open outline produced %d polygons", len(ob.Outline))
	}
}

func TestParseGraphics(t *testing.T) {
	b := parseDemo(t)

	if len(b.Drawings) != 3 {
		t.Fatalf("got %d drawings, want 3", len(b.Drawings))
	}
	silk := b.Drawings[2]
	if silk.Layer != board.FSilkS || silk.Shape != board.DrawSegment || silk.Width != 150_000 {
		t.Errorf("silk line = %+v", silk)
	}
	if b.Drawings[0].Shape != board.DrawRect || b.Drawings[0].Filled {
		t.Errorf("edge rect = %+v", b.Drawings[0])
	}
}

func TestParseFootprints(t *testing.T) {
	b := parseDemo(t)

	if len(b.Footprints) != 2 {
		t.Fatalf("got %d footprints, want 2", len(b.Footprints))
	}

	r1 := findFootprint(t, b, "R1")
	if r1.Value != "10k" || r1.LibID != "Resistor_SMD:R_0603_1608Metric" {
		t.Errorf("R1 = %q %q", r1.Value, r1.LibID)
	}
	if r1.UUID != uuid.MustParse("5b3c0b8e-8f6a-4b7e-9d1c-2a0e7f3f4a11") {
		t.Errorf("R1 uuid = %s", r1.UUID)
	}
	if r1.Side != board.Front || r1.Angle != 90 || !r1.Attr.SMD {
		t.Errorf("R1 placement = %v %v %+v", r1.Side, r1.Angle, r1.Attr)
	}
	if r1.Properties["MPN"] != "RC0603FR-0710KL" {
		t.Errorf("R1 properties = %v", r1.Properties)
	}
	if len(r1.Graphics) != 1 || r1.Graphics[0].Start != geom.PtMM(109.6, 90.8) {
		t.Errorf("R1 graphics = %+v", r1.Graphics)
	}

	j1 := findFootprint(t, b, "J1")
	if j1.Side != board.Back {
		t.Error("J1 should be on the back")
	}
	if j1.UUID == uuid.Nil {
		t.Error("J1 should get a derived uuid")
	}
	again := parseDemo(t)
	if findFootprint(t, again, "J1").UUID != j1.UUID {
		t.Error("derived uuid must be stable")
	}
	want := board.FootprintAttr{ThroughHole: true, ExcludeFromBOM: true, DNP: true}
	if j1.Attr != want {
		t.Errorf("J1 attr = %+v, want %+v", j1.Attr, want)
	}
}

func TestParsePads(t *testing.T) {
	b := parseDemo(t)
	r1 := findFootprint(t, b, "R1")
	j1 := findFootprint(t, b, "J1")

	if len(r1.Pads) != 2 || len(j1.Pads) != 4 {
		t.Fatalf("pads = %d, %d", len(r1.Pads), len(j1.Pads))
	}

	p1 := r1.Pads[0]
	if p1.Pos != geom.PtMM(110, 90.825) {
		t.Errorf("rotated pad position = %s, want (110, 90.825)", p1.Pos)
	}
	if p1.Angle != 90 || p1.Shape != board.PadRoundRect || p1.RoundRatio != 0.25 {
		t.Errorf("pad 1 = %+v", p1)
	}
	if p1.Net != 1 || p1.NetName != "GND" || p1.Footprint != "R1" {
		t.Errorf("pad 1 net = %d %q %q", p1.Net, p1.NetName, p1.Footprint)
	}
	if p1.Layers != board.NewLayerSet(board.FCu, board.FPaste, board.FMask) {
		t.Errorf("pad 1 layers = %s", p1.Layers)
	}
	if p2 := r1.Pads[1]; p2.Net != 3 || p2.NetName != "SIG" {
		t.Errorf("name-only net = %d %q", p2.Net, p2.NetName)
	}

	tests := []struct {
		name   string
		pad    *board.Pad
		attr   board.PadAttr
		shape  board.PadShape
		drill  geom.Point
		layers board.LayerSet
	}{
		{"chamfered", j1.Pads[0], board.PadPTH, board.PadChamferedRect, geom.PtMM(1, 1),
			board.CopperLayers(4).With(board.FMask).With(board.BMask)},
		{"oval", j1.Pads[1], board.PadPTH, board.PadOval, geom.PtMM(1, 1.6),
			board.CopperLayers(4).With(board.FMask).With(board.BMask)},
		{"npth", j1.Pads[2], board.PadNPTH, board.PadCircle, geom.PtMM(3, 3),
			board.NewLayerSet(board.FCu, board.BCu, board.FMask, board.BMask)},
		{"custom", j1.Pads[3], board.PadSMD, board.PadCustom, geom.Point{},
			board.NewLayerSet(board.BCu)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.pad.Attr != tt.attr || tt.pad.Shape != tt.shape {
				t.Errorf("attr/shape = %s/%s, want %s/%s", tt.pad.Attr, tt.pad.Shape, tt.attr, tt.shape)
			}
			if tt.pad.Drill != tt.drill {
				t.Errorf("drill = %s, want %s", tt.pad.Drill, tt.drill)
			}
			if tt.pad.Layers != tt.layers {
				t.Errorf("layers = %s, want %s", tt.pad.Layers, tt.layers)
			}
		})
	}

	if j1.Pads[0].Chamfer != geom.ChamferTopLeft || j1.Pads[0].DrillOffset != geom.PtMM(0.1, 0) {
		t.Errorf("chamfer/offset = %d %s", j1.Pads[0].Chamfer, j1.Pads[0].DrillOffset)
	}
	if p := j1.Pads[0]; p.HolePos() != p.Pos || p.ShapePos() == p.Pos {
		t.Errorf("offset pad: hole at %s, copper at %s, pad at %s", p.HolePos(), p.ShapePos(), p.Pos)
	}
	if j1.Pads[1].DrillShape != board.DrillOblong || j1.Pads[1].MaskMargin != 50_000 {
		t.Errorf("oval pad = %+v", j1.Pads[1])
	}
	custom := j1.Pads[3]
	if custom.AnchorShape != board.PadRect || len(custom.Primitives) != 2 {
		t.Errorf("custom pad anchor %s with %d primitives", custom.AnchorShape, len(custom.Primitives))
	}
	if n := len(custom.SubShapes()); n != 3 {
		t.Errorf("custom SubShapes() = %d, want 3", n)
	}
}

func TestParseModels(t *testing.T) {
	b := parseDemo(t)

	r1 := findFootprint(t, b, "R1").Models
	if len(r1) != 1 || !r1[0].Show || r1[0].Opacity != 1 || r1[0].Scale != (mgl64.Vec3{1, 1, 1}) {
		t.Errorf("R1 models = %+v", r1)
	}
	if !strings.HasPrefix(r1[0].Path, "${KICAD8_3DMODEL_DIR}/") {
		t.Errorf("path = %q", r1[0].Path)
	}

	j1 := findFootprint(t, b, "J1").Models
	if len(j1) != 1 {
		t.Fatalf("J1 models = %d", len(j1))
	}
	m := j1[0]
	if m.Show || m.Opacity != 0.5 || m.Offset != (mgl64.Vec3{0, 0, 1}) || m.Rotation != (mgl64.Vec3{0, 0, 90}) {
		t.Errorf("J1 model = %+v", m)
	}

	legacy := `(model "x.wrl" (at (xyz 0.1 0 0)) (scale (xyz 1 1 1)) (rotate (xyz 0 0 0)))`
	lb, err := NewParser(nil).Parse(strings.NewReader(`(kicad_pcb (version 20211014)
		(footprint "a:b" (layer "F.Cu") (at 0 0) ` + legacy + `))`))
	if err != nil {
		t.Fatal(err)
	}
	if got := lb.Footprints[0].Models[0].Offset.X(); math.Abs(got-2.54) > 1e-9 {
		t.Errorf("legacy inch offset = %g mm, want 2.54", got)
	}
}

func TestParseTracks(t *testing.T) {
	b := parseDemo(t)

	if len(b.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 (silkscreen segment skipped)", len(b.Tracks))
	}
	seg, arc := b.Tracks[0], b.Tracks[1]
	if seg.Kind != board.Segment || seg.Width != 250_000 || seg.Layer != board.FCu || seg.Net != 1 {
		t.Errorf("segment = %+v", seg)
	}
	if arc.Kind != board.ArcTrack || arc.Mid != geom.PtMM(122.9289, 91.2929) {
		t.Errorf("arc = %+v", arc)
	}
}

func TestParseVias(t *testing.T) {
	b := parseDemo(t)

	tests := []struct {
		typ         board.ViaType
		top, bottom board.LayerID
		net         int
	}{
		{board.ViaThrough, board.FCu, board.BCu, 1},
		{board.ViaBlindBuried, board.FCu, board.In1, 2},
		{board.ViaMicro, board.FCu, board.In1, 2},
	}
	if len(b.Vias) != len(tests) {
		t.Fatalf("got %d vias, want %d", len(b.Vias), len(tests))
	}
	for i, tt := range tests {
		v := b.Vias[i]
		if v.Type != tt.typ || v.Top != tt.top || v.Bottom != tt.bottom || v.Net != tt.net {
			t.Errorf("via %d = %+v", i, v)
		}
	}
	if b.Vias[0].Diameter != 600_000 || b.Vias[0].Drill != 300_000 {
		t.Errorf("via size = %d/%d", b.Vias[0].Diameter, b.Vias[0].Drill)
	}
}

func TestParseZones(t *testing.T) {
	b := parseDemo(t)

	if len(b.Zones) != 2 {
		t.Fatalf("got %d zones, want 2", len(b.Zones))
	}
	gnd := b.Zones[0]
	if gnd.Net != 1 || gnd.Priority != 2 || gnd.Name != "gnd" || gnd.Keepout {
		t.Errorf("gnd zone = %+v", gnd)
	}
	if gnd.Layers != board.NewLayerSet(board.FCu, board.BCu) {
		t.Errorf("gnd layers = %s", gnd.Layers)
	}
	if len(gnd.Fills[board.FCu]) != 1 || len(gnd.Fills[board.BCu]) != 2 {
		t.Errorf("fills F=%d B=%d", len(gnd.Fills[board.FCu]), len(gnd.Fills[board.BCu]))
	}

	keep := b.Zones[1]
	if !keep.Keepout || keep.Layers != board.NewLayerSet(board.In1) || len(keep.Fills) != 0 {
		t.Errorf("keepout zone = %+v", keep)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.kicad_pcb")
	if err := os.WriteFile(path, []byte(demoBoard), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "demo" || b.FileName != path {
		t.Errorf("Name = %q, FileName = %q", b.Name, b.FileName)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.kicad_pcb")); err == nil {
		t.Error("missing file must fail")
	}
}
