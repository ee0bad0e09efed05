package pcb3d

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/breptest"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/prism"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// plainBoard is a 20 x 10 mm two layer board, 1.6 mm thick
func plainBoard() *board.Board {
	return &board.Board{
		Name:        "demo",
		Thickness:   1_600_000,
		CopperCount: 2,
		Outline: geom.PolySet{{
			Outline: geom.RectChain(geom.PtMM(10, 5), geom.FromMM(20), geom.FromMM(10), 0),
		}},
	}
}

func thtPad(ref string, pos geom.Point) *board.Pad {
	return &board.Pad{
		Number:    "1",
		Footprint: ref,
		Attr:      board.PadPTH,
		Shape:     board.PadCircle,
		Pos:       pos,
		Size:      geom.Point{X: geom.FromMM(0.6), Y: geom.FromMM(0.6)},
		Drill:     geom.Point{X: geom.FromMM(0.3), Y: geom.FromMM(0.3)},
		Layers:    board.NewLayerSet(board.FCu, board.BCu),
		NetName:   "GND",
	}
}

func newTestSession(t *testing.T, k brep.Kernel, cfg Config) *Session {
	return NewSession(k, cfg, "demo", zaptest.NewLogger(t), nil)
}

func holeWidth(p *prism.Prism, i int) float64 {
	lo, hi := p.Holes[i][0].X, p.Holes[i][0].X
	for _, v := range p.Holes[i] {
		lo = min(lo, v.X)
		hi = max(hi, v.X)
	}
	return hi - lo
}

func prisms(s brep.Shape) []*prism.Prism {
	switch v := s.(type) {
	case *prism.Prism:
		return []*prism.Prism{v}
	case *prism.Compound:
		var out []*prism.Prism
		for _, c := range v.Children {
			out = append(out, prisms(c)...)
		}
		return out
	}
	return nil
}

func TestPlainBoardExport(t *testing.T) {
	k := breptest.New(prism.New(prism.Options{}))
	s := newTestSession(t, k, DefaultConfig())
	require.NoError(t, s.Build(plainBoard()))

	assert.True(t, s.IsBoardOutlineValid())
	require.Len(t, s.Items(BucketOutline), 1)
	assert.Equal(t, brep.KindSolid, s.Items(BucketOutline)[0].Shape.Kind())

	root := s.Document().Root
	require.Len(t, root.Components, 1)
	assert.Equal(t, "demo_PCB", root.Components[0].Name)

	dir := t.TempDir()
	out := filepath.Join(dir, "demo.step")
	require.NoError(t, s.WriteSTEP(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ISO-10303-21;"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file left behind")

	back, err := k.ReadSTEP(strings.NewReader(string(data)))
	require.NoError(t, err)
	body := back.Find("demo_PCB")
	require.NotNil(t, body)
	bb := k.Bounds(body.Shape)
	assert.InDelta(t, 20.0, bb.Max.X-bb.Min.X, 1e-6)
	assert.InDelta(t, 1.53, bb.Max.Z-bb.Min.Z, 1e-6)
}

func TestThroughHolePadExport(t *testing.T) {
	k := prism.New(prism.Options{})
	s := newTestSession(t, k, DefaultConfig())

	b := plainBoard()
	b.Footprints = []*board.Footprint{{
		Reference: "J1",
		Pos:       geom.PtMM(5, 5),
		Pads:      []*board.Pad{thtPad("J1", geom.PtMM(5, 5))},
	}}
	require.NoError(t, s.Build(b))

	st := s.Stats()
	assert.Equal(t, 1, st.BoardCutouts)
	assert.Equal(t, 1, st.CopperCutouts)
	assert.Zero(t, st.Failures)

	// board body: one hole at the mechanical drill size
	outline := s.Items(BucketOutline)
	require.Len(t, outline, 1)
	body, ok := outline[0].Shape.(*prism.Prism)
	require.True(t, ok)
	require.Len(t, body.Holes, 1)
	assert.InDelta(t, 0.3, holeWidth(body, 0), 0.01)

	// one pad item: both pad faces and the plating, holed at the copper
	// drill size
	pads := s.Items(BucketPads)
	require.Len(t, pads, 1)
	parts := prisms(pads[0].Shape)
	require.Len(t, parts, 3)
	for _, p := range parts {
		require.Len(t, p.Holes, 1, "slab at z %g", p.Z0)
		assert.InDelta(t, 0.3-2*0.025, holeWidth(p, 0), 0.01)
	}

	names := []string{}
	for _, c := range s.Document().Root.Components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"demo_pads", "demo_PCB"}, names)

	tp, ok := s.PadPoints()["Pad_F_J1_1_GND"]
	require.True(t, ok)
	assert.InDelta(t, 1.565+PadSurfaceOffset, tp.Point.Z(), 1e-9)
	_, ok = s.PadPoints()["Pad_B_J1_1_GND"]
	assert.True(t, ok)
}

func TestPartNamesAreNumbered(t *testing.T) {
	k := prism.New(prism.Options{})
	cfg := DefaultConfig()
	s := newTestSession(t, k, cfg)

	b := plainBoard()
	b.Tracks = []board.Track{
		{Start: geom.PtMM(1, 1), End: geom.PtMM(8, 1), Width: geom.FromMM(0.25), Layer: board.FCu},
		{Start: geom.PtMM(1, 3), End: geom.PtMM(8, 3), Width: geom.FromMM(0.25), Layer: board.BCu},
		{Start: geom.PtMM(1, 5), End: geom.PtMM(8, 5), Width: geom.FromMM(0.25), Layer: board.In1},
	}
	require.NoError(t, s.Build(b))

	var names []string
	for _, c := range s.Document().Root.Components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"demo_tracks_1", "demo_tracks_2", "demo_PCB"}, names, "inner layer is not on a 2 layer board")
}

func TestFuseCopper(t *testing.T) {
	k := prism.New(prism.Options{})
	cfg := DefaultConfig()
	cfg.FuseShapes = true
	s := newTestSession(t, k, cfg)

	b := plainBoard()
	b.Tracks = []board.Track{
		{Start: geom.PtMM(1, 1), End: geom.PtMM(8, 1), Width: geom.FromMM(0.25), Layer: board.FCu},
		{Start: geom.PtMM(8, 1), End: geom.PtMM(8, 8), Width: geom.FromMM(0.25), Layer: board.FCu},
	}
	require.NoError(t, s.Build(b))

	assert.Empty(t, s.Items(BucketTracks))
	require.Len(t, s.Items(BucketCopper), 1)
	assert.Equal(t, "demo_copper", s.Document().Root.Components[0].Name)
}

func TestFuseFallbackKeepsShapes(t *testing.T) {
	k := breptest.New(prism.New(prism.Options{}))
	k.FailFuse = true
	core, logs := observer.New(zapcore.WarnLevel)
	s := NewSession(k, DefaultConfig(), "demo", zap.New(core), nil)

	ok := s.AddPadShape(thtPad("J1", geom.PtMM(5, 5)), false)
	assert.True(t, ok)
	assert.Len(t, s.Items(BucketPads), 3)
	assert.Equal(t, 1, k.Calls("Fuse"))

	entries := logs.FilterMessage("fuse failed, keeping shapes unfused").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["intended"])
	assert.Equal(t, int64(3), fields["actual"])
	assert.Equal(t, "pad J1-1", fields["item"])
}

func TestBlindViaHasNoPlating(t *testing.T) {
	k := prism.New(prism.Options{})
	s := newTestSession(t, k, DefaultConfig())
	s.SetStackup(board.DefaultStackup(4, 1_600_000))
	s.SetEnabledLayers(board.CopperLayers(4))

	through := board.Via{Pos: geom.PtMM(2, 2), Diameter: geom.FromMM(0.6), Drill: geom.FromMM(0.3), Top: board.FCu, Bottom: board.BCu, Type: board.ViaThrough}
	require.True(t, s.AddViaShape(through, board.CopperLayers(4)))
	require.Len(t, s.Items(BucketPads), 1)
	assert.Len(t, prisms(s.Items(BucketPads)[0].Shape), 5, "4 annuli and the barrel")

	blind := board.Via{Pos: geom.PtMM(4, 2), Diameter: geom.FromMM(0.6), Drill: geom.FromMM(0.3), Top: board.FCu, Bottom: board.In1, Type: board.ViaBlindBuried}
	require.True(t, s.AddViaShape(blind, board.CopperLayers(4)))
	require.Len(t, s.Items(BucketPads), 2)
	assert.Len(t, prisms(s.Items(BucketPads)[1].Shape), 2)

	assert.Empty(t, s.PadPoints(), "vias have no test points")
}

func TestMissingOutlineFailsEveryWriter(t *testing.T) {
	k := prism.New(prism.Options{})
	s := newTestSession(t, k, DefaultConfig())

	b := plainBoard()
	b.Outline = nil
	err := s.Build(b)
	assert.ErrorIs(t, err, ErrNoBoardOutline)
	assert.False(t, s.IsBoardOutlineValid())

	dir := t.TempDir()
	for _, f := range []OutputFormat{OutputSTEP, OutputIGES, OutputGLTF, OutputBREP, OutputXAO} {
		err := s.Write(f, filepath.Join(dir, "demo."+f.Ext()))
		assert.ErrorIs(t, err, ErrNoBoardOutline, "%s", f)
		assert.Contains(t, err.Error(), "outline")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComponentPlacement(t *testing.T) {
	k := prism.New(prism.Options{})
	dir := t.TempDir()
	writeModel(t, k, filepath.Join(dir, "part.step"), 0.5)

	b := plainBoard()
	b.FileName = filepath.Join(dir, "demo.kicad_pcb")
	b.Footprints = []*board.Footprint{
		{Reference: "U1", Pos: geom.PtMM(5, 5), Side: board.Front, Models: []board.Model{{Path: "part.step", Show: true}}},
		{Reference: "U2", Pos: geom.PtMM(15, 5), Side: board.Back, Models: []board.Model{
			{Path: "part.step", Show: true},
			{Path: "part.step", Show: true, Offset: mgl64.Vec3{0, 0, 1}},
		}},
		{Reference: "U3", Pos: geom.PtMM(10, 5), Models: []board.Model{{Path: "part.step", Show: false}}},
		{Reference: "U4", Pos: geom.PtMM(10, 5), Models: []board.Model{{Path: "gone.step", Show: true}}},
	}

	s := newTestSession(t, k, DefaultConfig())
	require.NoError(t, s.Build(b))

	st := s.Stats()
	assert.Equal(t, 2, st.Components)
	assert.Equal(t, 3, st.Models)
	assert.Equal(t, 1, st.Failures, "missing model")

	byName := map[string]*brep.Component{}
	for _, c := range s.Document().Root.Components {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "U1")
	require.Contains(t, byName, "U2_1")
	require.Contains(t, byName, "U2_2")
	assert.NotContains(t, byName, "U3")
	assert.Same(t, byName["U2_1"].Ref, byName["U2_2"].Ref, "one cached model")

	u1 := mgl64.TransformCoordinate(mgl64.Vec3{}, byName["U1"].Location)
	assert.True(t, u1.ApproxEqualThreshold(mgl64.Vec3{5, -5, 1.53 + BoardOffset}, 1e-6), "%v", u1)
	u2 := mgl64.TransformCoordinate(mgl64.Vec3{}, byName["U2_1"].Location)
	assert.True(t, u2.ApproxEqualThreshold(mgl64.Vec3{15, -5, -BoardOffset}, 1e-6), "%v", u2)

	cfg := DefaultConfig()
	cfg.BoardOnly = true
	s = newTestSession(t, k, cfg)
	require.NoError(t, s.Build(b))
	assert.Zero(t, s.Stats().Components)
}

func TestWriters(t *testing.T) {
	k := prism.New(prism.Options{})
	s := newTestSession(t, k, DefaultConfig())
	b := plainBoard()
	b.FileName = "/boards/demo.kicad_pcb"
	b.Footprints = []*board.Footprint{{
		Reference: "J1",
		Pos:       geom.PtMM(5, 5),
		Pads:      []*board.Pad{thtPad("J1", geom.PtMM(5, 5))},
	}}
	require.NoError(t, s.Build(b))
	dir := t.TempDir()

	t.Run("iges", func(t *testing.T) {
		out := filepath.Join(dir, "demo.igs")
		require.NoError(t, s.Write(OutputIGES, out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, byte('S'), data[72])
	})

	t.Run("brep", func(t *testing.T) {
		out := filepath.Join(dir, "demo.brep")
		require.NoError(t, s.Write(OutputBREP, out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), prism.BREPHeader))
	})

	t.Run("glb", func(t *testing.T) {
		out := filepath.Join(dir, "demo.glb")
		require.NoError(t, s.Write(OutputGLTF, out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.Greater(t, len(data), 12)
		assert.Equal(t, "glTF", string(data[:4]))
		assert.Contains(t, string(data), "demo.kicad_pcb")
		_, err = os.Stat(filepath.Join(dir, "$tempfile$.glb"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("xao", func(t *testing.T) {
		out := filepath.Join(dir, "demo.xao")
		require.NoError(t, s.Write(OutputXAO, out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)

		var doc xaoDoc
		require.NoError(t, xml.Unmarshal(data, &doc))
		assert.Equal(t, "1.0", doc.Version)
		assert.Equal(t, "BREP", doc.Geometry.Shape.Format)
		assert.True(t, strings.HasPrefix(doc.Geometry.Shape.Data, prism.BREPHeader))
		assert.Equal(t, 4, doc.Geometry.Topology.Solids.Count, "board and three copper slabs")
		assert.Equal(t, len(doc.Geometry.Topology.Faces.Items), doc.Geometry.Topology.Faces.Count)

		groups := map[string]xaoGroup{}
		for _, g := range doc.Groups.Groups {
			groups[g.Name] = g
		}
		require.Contains(t, groups, "Pad_F_J1_1_GND")
		require.Contains(t, groups, "Pad_B_J1_1_GND")
		for _, g := range groups {
			assert.Equal(t, "face", g.Dimension)
			assert.Equal(t, 1, g.Count, g.Name)
		}
	})
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"step": OutputSTEP, ".STP": OutputSTEP, "igs": OutputIGES, "glb": OutputGLTF, "xao": OutputXAO, "brep": OutputBREP} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOutputFormat("vrml")
	assert.Error(t, err)
}
