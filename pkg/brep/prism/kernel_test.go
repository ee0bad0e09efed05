package prism

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

func rectWire(x0, y0, x1, y1 float64) brep.Wire {
	pts := []r2.Vec{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
	w := brep.Wire{}
	for i, p := range pts {
		w.Edges = append(w.Edges, brep.Edge{Kind: brep.LineEdge, Start: p, End: pts[(i+1)%len(pts)]})
	}
	return w
}

func box(t *testing.T, k *Kernel, x0, y0, x1, y1, z0, h float64) *Prism {
	t.Helper()
	f, err := k.MakeFace(rectWire(x0, y0, x1, y1), nil, z0)
	require.NoError(t, err)
	s, err := k.Extrude(f, h)
	require.NoError(t, err)
	return s.(*Prism)
}

func cylinder(t *testing.T, k *Kernel, x, y, r, z0, h float64) *Prism {
	t.Helper()
	f, err := k.MakeFace(brep.CircleWire(r2.Vec{X: x, Y: y}, r), nil, z0)
	require.NoError(t, err)
	s, err := k.Extrude(f, h)
	require.NoError(t, err)
	return s.(*Prism)
}

func area(p *Prism) float64 {
	a := math.Abs(signedArea(p.Outer))
	for _, h := range p.Holes {
		a -= math.Abs(signedArea(h))
	}
	return a
}

func TestMakeFaceAndExtrude(t *testing.T) {
	k := New(Options{})

	b := box(t, k, 0, 0, 10, 5, 0, 1.6)
	assert.Equal(t, brep.KindSolid, b.Kind())
	bb := k.Bounds(b)
	assert.InDelta(t, 10.0, bb.Max.X, 1e-12)
	assert.InDelta(t, 5.0, bb.Max.Y, 1e-12)
	assert.InDelta(t, 1.6, bb.Max.Z, 1e-12)

	down := box(t, k, 0, 0, 1, 1, 0, -0.035)
	assert.InDelta(t, -0.035, down.Z0, 1e-12)
	assert.InDelta(t, 0.0, down.Z1, 1e-12)

	f, err := k.MakeFace(rectWire(0, 0, 1, 1), nil, 0)
	require.NoError(t, err)
	_, err = k.Extrude(f, 0)
	assert.ErrorIs(t, err, ErrZeroHeight)

	open := rectWire(0, 0, 1, 1)
	open.Edges[1].Start = r2.Vec{X: 2, Y: 2}
	_, err = k.MakeFace(open, nil, 0)
	assert.ErrorIs(t, err, brep.ErrInvalidWire)
}

func TestCircleFlattening(t *testing.T) {
	k := New(Options{ChordError: 0.001})
	c := cylinder(t, k, 0, 0, 1, 0, 1)
	assert.InDelta(t, math.Pi, area(c), 0.01)
	for _, p := range c.Outer {
		assert.InDelta(t, 1.0, r2.Norm(p), 1e-9)
	}

	for _, r := range []float64{0.25, 0.5, 0.8, 3} {
		b := k.Bounds(cylinder(t, k, 1, 2, r, 0, 1))
		assert.InDelta(t, 1.0, (b.Min.X+b.Max.X)/2, 1e-9, "r=%g", r)
		assert.InDelta(t, 2.0, (b.Min.Y+b.Max.Y)/2, 1e-9, "r=%g", r)
		assert.InDelta(t, 2*r, b.Max.X-b.Min.X, 1e-9, "r=%g", r)
	}
}

func TestCutInsertsHoles(t *testing.T) {
	k := New(Options{})
	board := box(t, k, 0, 0, 10, 10, 0, 1.6)
	tools := []brep.Shape{
		cylinder(t, k, 3, 3, 0.5, -0.01, 1.62),
		cylinder(t, k, 7, 7, 0.5, -0.01, 1.62),
		cylinder(t, k, 30, 30, 0.5, -0.01, 1.62),
	}

	res, rep := k.Cut(board, tools, brep.BooleanOptions{})
	assert.True(t, rep.OK(), rep.String())
	p := res.(*Prism)
	assert.Len(t, p.Holes, 2)
	assert.InDelta(t, 100-2*math.Pi*0.25, area(p), 0.05)
	assert.Len(t, board.Holes, 0, "target must not be modified")
}

func TestCutAcrossOutline(t *testing.T) {
	k := New(Options{})
	board := box(t, k, 0, 0, 10, 10, 0, 1.6)
	notch := box(t, k, 9, 4, 11, 6, -0.01, 1.62)

	res, rep := k.Cut(board, []brep.Shape{notch}, brep.BooleanOptions{})
	require.Empty(t, rep.Errors)
	p := res.(*Prism)
	assert.InDelta(t, 98.0, area(p), 1e-6)
}

func TestCutPartialDepthIsReported(t *testing.T) {
	k := New(Options{})
	board := box(t, k, 0, 0, 10, 10, 0, 1.6)
	blind := cylinder(t, k, 5, 5, 0.3, 0.8, 1)

	res, rep := k.Cut(board, []brep.Shape{blind}, brep.BooleanOptions{})
	require.Len(t, rep.Warnings, 1)
	p := res.(*Prism)
	assert.Equal(t, 1, p.Residual())
	assert.Empty(t, p.Holes)
}

func TestFuse(t *testing.T) {
	k := New(Options{})
	a := box(t, k, 0, 0, 2, 2, 0, 0.035)
	b := box(t, k, 1, 1, 3, 3, 0, 0.035)
	c := box(t, k, 10, 10, 11, 11, 0, 0.035)
	d := box(t, k, 0, 0, 2, 2, 1.6, 0.035)

	res, rep := k.Fuse([]brep.Shape{a, b, c, d}, brep.BooleanOptions{})
	assert.True(t, rep.OK(), rep.String())
	comp, ok := res.(*Compound)
	require.True(t, ok)
	require.Len(t, comp.Children, 3)

	var areas []float64
	for _, ch := range comp.Children {
		areas = append(areas, area(ch.(*Prism)))
	}
	assert.InDelta(t, 7.0, areas[0], 1e-6)
	assert.InDelta(t, 1.0, areas[1], 1e-6)
	assert.InDelta(t, 4.0, areas[2], 1e-6)
}

func TestTriangulate(t *testing.T) {
	k := New(Options{})
	board := box(t, k, 0, 0, 10, 10, 0, 1.6)
	res, _ := k.Cut(board, []brep.Shape{cylinder(t, k, 5, 5, 1, -1, 4)}, brep.BooleanOptions{})
	p := res.(*Prism)

	m, err := k.Triangulate(p, 0.14, 30*math.Pi/180)
	require.NoError(t, err)
	require.NotZero(t, m.Triangles())

	top := 0.0
	for i := 0; i < len(m.Indices); i += 3 {
		a, b, c := m.Positions[m.Indices[i]], m.Positions[m.Indices[i+1]], m.Positions[m.Indices[i+2]]
		n := b.Sub(a).Cross(c.Sub(a))
		if a.Z() > 1.5 && b.Z() > 1.5 && c.Z() > 1.5 {
			assert.Greater(t, n.Z(), -1e-12, "top triangles face up")
			top += n.Len() / 2
		}
	}
	assert.InDelta(t, area(p), top, 1e-6)
}

func TestExploreAndDistance(t *testing.T) {
	k := New(Options{})
	b := box(t, k, 0, 0, 1, 1, 0, 1)
	topo := k.Explore(b)
	assert.Len(t, topo.Vertices, 8)
	assert.Len(t, topo.Edges, 12)
	assert.Len(t, topo.Faces, 6)
	assert.Len(t, topo.Solids, 1)
	for _, f := range topo.Faces {
		assert.True(t, k.IsPlanar(f))
	}

	assert.InDelta(t, 0.0, k.Distance(b, mgl64.Vec3{0.5, 0.5, 1}), 1e-12)
	assert.InDelta(t, 1.0, k.Distance(b, mgl64.Vec3{0.5, 0.5, 2}), 1e-12)
	assert.InDelta(t, 0.0, k.Distance(topo.Faces[1], mgl64.Vec3{0.2, 0.7, 1}), 1e-12)
}

func TestTransform(t *testing.T) {
	k := New(Options{})
	b := box(t, k, 0, 0, 1, 1, 0, 1)
	assert.Same(t, b, k.Transform(b, mgl64.Ident4()))

	moved := k.Transform(b, mgl64.Translate3D(5, 0, 0).Mul4(mgl64.HomogRotate3DX(math.Pi)))
	bb := k.Bounds(moved)
	assert.InDelta(t, 5.0, bb.Min.X, 1e-9)
	assert.InDelta(t, -1.0, bb.Min.Z, 1e-9)
	assert.InDelta(t, 0.0, bb.Max.Z, 1e-9)
}

func testDocument(t *testing.T, k *Kernel) *brep.Document {
	doc := brep.NewDocument("demo")
	green := brep.Color{R: 0.1, G: 0.5, B: 0.2}
	doc.AddShape("demo_PCB", box(t, k, 0, 0, 20, 10, 0, 1.6), &green)
	l := doc.AddShape("demo_copper", box(t, k, 1, 1, 2, 2, 1.6, 0.035), nil)
	l.FaceColors = map[int]brep.Color{1: {R: 1, G: 0.8, B: 0.2}}
	return doc
}

func TestSTEPRoundTrip(t *testing.T) {
	k := New(Options{})
	doc := testDocument(t, k)

	var buf bytes.Buffer
	require.NoError(t, k.WriteSTEP(&buf, doc, brep.Header{FileName: "demo.step", Author: "O'Neil"}))
	require.True(t, strings.HasPrefix(buf.String(), "ISO-10303-21;"))
	assert.Contains(t, buf.String(), "'O''Neil'")

	back, err := k.ReadSTEP(&buf)
	require.NoError(t, err)
	assert.Equal(t, "demo.step", back.Name)
	require.Len(t, back.Root.Components, 2)

	board := back.Find("demo_PCB")
	require.NotNil(t, board)
	require.NotNil(t, board.SolidColor)
	assert.InDelta(t, 0.5, board.SolidColor.G, 1e-12)
	bb := k.Bounds(board.Shape)
	assert.InDelta(t, 20.0, bb.Max.X, 1e-9)
	assert.InDelta(t, 1.6, bb.Max.Z, 1e-9)

	cu := back.Find("demo_copper")
	require.NotNil(t, cu)
	c, ok := cu.FaceColor(1)
	require.True(t, ok)
	assert.InDelta(t, 0.8, c.G, 1e-12)
	_, ok = cu.FaceColor(0)
	assert.False(t, ok)
}

func TestIGESRoundTrip(t *testing.T) {
	k := New(Options{})
	doc := testDocument(t, k)

	var buf bytes.Buffer
	require.NoError(t, k.WriteIGES(&buf, doc, brep.Header{FileName: "demo.igs"}))
	for i, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		require.Len(t, line, 80, "line %d", i+1)
	}
	first := buf.String()[:81]
	assert.Equal(t, byte('S'), first[72])
	assert.Equal(t, byte('\n'), first[80])

	back, err := k.ReadIGES(&buf)
	require.NoError(t, err)
	assert.Equal(t, "demo", back.Name)
	board := back.Find("demo_PCB")
	require.NotNil(t, board)
	bb := k.Bounds(board.Shape)
	assert.InDelta(t, 20.0, bb.Max.X, 1e-9)
	c, ok := board.FaceColor(3)
	require.True(t, ok)
	assert.InDelta(t, 0.5, c.G, 1e-9)
	assert.NotNil(t, back.Find("demo_copper"))
}

func TestWriteBREP(t *testing.T) {
	k := New(Options{})
	var buf bytes.Buffer
	b := box(t, k, 0, 0, 1, 1, 0, 1)
	require.NoError(t, k.WriteBREP(&buf, k.Compound([]brep.Shape{b, k.Transform(b, mgl64.Translate3D(2, 0, 0))})))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, BREPHeader+"\n"))
	assert.Contains(t, out, "prism 0 1 1\n")
	assert.Contains(t, out, "polyhedron 6\n")
}
