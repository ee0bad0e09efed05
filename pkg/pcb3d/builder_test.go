package pcb3d

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/prism"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

func TestThickSegment(t *testing.T) {
	k := prism.New(prism.Options{})
	b := NewBuilder(k, DefaultConfig(), geom.Point{})

	s, err := b.ThickSegment(geom.PtMM(0, 0), geom.PtMM(10, 0), geom.FromMM(1), 0.035, 1.6)
	require.NoError(t, err)
	bb := k.Bounds(s)
	assert.InDelta(t, -0.5, bb.Min.X, 0.01)
	assert.InDelta(t, 10.5, bb.Max.X, 0.01)
	assert.InDelta(t, 0.5, bb.Max.Y, 0.01)
	assert.InDelta(t, 1.6, bb.Min.Z, 1e-9)
	assert.InDelta(t, 1.635, bb.Max.Z, 1e-9)

	// shorter than the merge distance: a plain disc
	dot, err := b.ThickSegment(geom.PtMM(2, 2), geom.PtMM(2, 2), geom.FromMM(0.4), 0.035, 0)
	require.NoError(t, err)
	bb = k.Bounds(dot)
	assert.InDelta(t, 0.4, bb.Max.X-bb.Min.X, 0.02)
	assert.InDelta(t, -2.0, (bb.Min.Y+bb.Max.Y)/2, 1e-6)

	_, err = b.ThickSegment(geom.PtMM(0, 0), geom.PtMM(1, 0), 0, 0.035, 0)
	assert.ErrorIs(t, err, geom.ErrDegenerate)
}

func TestBuilderOrigin(t *testing.T) {
	k := prism.New(prism.Options{})
	b := NewBuilder(k, DefaultConfig(), geom.PtMM(100, 50))

	s, err := b.Cylinder(geom.PtMM(101, 52), geom.FromMM(0.5), 1, 0)
	require.NoError(t, err)
	bb := k.Bounds(s)
	assert.InDelta(t, 1.0, (bb.Min.X+bb.Max.X)/2, 1e-6)
	assert.InDelta(t, -2.0, (bb.Min.Y+bb.Max.Y)/2, 1e-6)
}

func TestThickArcChain(t *testing.T) {
	r := 10.0
	start := geom.PtMM(r, 0)
	mid := geom.PtMM(r/math.Sqrt2, r/math.Sqrt2)
	end := geom.PtMM(0, r)

	c, ok := thickArcChain(start, mid, end, geom.FromMM(1))
	require.True(t, ok)
	assert.Equal(t, 4, c.ArcCount())
	for _, p := range c.Polyline(1000) {
		d := math.Hypot(geom.ToMM(p.X), geom.ToMM(p.Y))
		assert.True(t, d > r-0.51 && d < r+0.51, "point %s at %g mm from the centre", p, d)
	}

	_, ok = thickArcChain(start, mid, end, geom.FromMM(25))
	assert.False(t, ok, "width larger than the diameter")

	k := prism.New(prism.Options{})
	b := NewBuilder(k, DefaultConfig(), geom.Point{})
	s, err := b.ThickArc(start, mid, end, geom.FromMM(1), 0.035, 0)
	require.NoError(t, err)
	bb := k.Bounds(s)
	assert.InDelta(t, r+0.5, bb.Max.X, 0.02)
	assert.InDelta(t, -(r + 0.5), bb.Min.Y, 0.02)

	// too tight: falls back to a straight segment
	_, err = b.ThickArc(start, mid, end, geom.FromMM(25), 0.035, 0)
	assert.NoError(t, err)
}

func TestPolygonToSolid(t *testing.T) {
	k := prism.New(prism.Options{})
	b := NewBuilder(k, DefaultConfig(), geom.Point{})

	outline := geom.RectChain(geom.PtMM(5, 5), geom.FromMM(10), geom.FromMM(10), 0)
	hole := geom.CircleChain(geom.PtMM(5, 5), geom.FromMM(1))
	bad := geom.NewChain([]geom.Point{geom.PtMM(2, 2), geom.PtMM(3, 2)})

	s, warn, err := b.PolygonToSolid(geom.Polygon{Outline: outline, Holes: []geom.Chain{hole, bad}}, 1.6, 0, true)
	require.NoError(t, err)
	require.Len(t, warn, 1)
	assert.ErrorIs(t, warn[0], geom.ErrDegenerate)
	p, ok := s.(*prism.Prism)
	require.True(t, ok)
	assert.Len(t, p.Holes, 1)

	face, _, err := b.PolygonToSolid(geom.Polygon{Outline: outline}, 0, 2, false)
	require.NoError(t, err)
	assert.True(t, k.IsPlanar(face))

	_, _, err = b.PolygonToSolid(geom.Polygon{Outline: bad}, 1, 0, false)
	assert.ErrorIs(t, err, geom.ErrDegenerate)

	shapes, errs := b.PolySetToSolids(geom.PolySet{{Outline: outline}, {Outline: bad}}, 1, 0, false)
	assert.Len(t, shapes, 1)
	assert.Len(t, errs, 1)
}

func TestPolygonToSolidKeepsOctagon(t *testing.T) {
	k := prism.New(prism.Options{})
	b := NewBuilder(k, DefaultConfig(), geom.Point{})

	pts := make([]geom.Point, 8)
	for i := range pts {
		a := math.Pi/8 + float64(i)*math.Pi/4
		pts[i] = geom.PtMM(20+10*math.Cos(a), 10*math.Sin(a))
	}
	for _, arcs := range []bool{false, true} {
		s, _, err := b.PolygonToSolid(geom.Polygon{Outline: geom.NewChain(pts)}, 1.6, 0, arcs)
		require.NoError(t, err)
		bb := k.Bounds(s)
		flat := 10 * math.Cos(math.Pi/8)
		assert.InDelta(t, 20-flat, bb.Min.X, 1e-3, "convertToArcs=%v", arcs)
		assert.InDelta(t, 20+flat, bb.Max.X, 1e-3, "convertToArcs=%v", arcs)
	}
}

func TestModelLocation(t *testing.T) {
	at := func(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
		return mgl64.TransformCoordinate(p, m)
	}
	pos := mgl64.Vec2{10, 5}

	top := ModelLocation(false, pos, 0, mgl64.Vec3{}, mgl64.Vec3{}, 1.6, 0)
	assertVec(t, mgl64.Vec3{10, -5, 1.65}, at(top, mgl64.Vec3{}))

	rot := ModelLocation(false, pos, math.Pi/2, mgl64.Vec3{}, mgl64.Vec3{}, 1.6, 0)
	assertVec(t, mgl64.Vec3{10, -4, 1.65}, at(rot, mgl64.Vec3{1, 0, 0}))

	bottom := ModelLocation(true, pos, 0, mgl64.Vec3{}, mgl64.Vec3{}, 1.6, 0)
	assertVec(t, mgl64.Vec3{10, -5, -0.05}, at(bottom, mgl64.Vec3{}))
	assertVec(t, mgl64.Vec3{10, -5, -1.05}, at(bottom, mgl64.Vec3{0, 0, 1}), "back side models hang below the board")

	lifted := ModelLocation(false, pos, 0, mgl64.Vec3{0, 0, 1}, mgl64.Vec3{}, 1.6, 0)
	assertVec(t, mgl64.Vec3{10, -5, 2.65}, at(lifted, mgl64.Vec3{}))

	turned := ModelLocation(false, mgl64.Vec2{}, 0, mgl64.Vec3{}, mgl64.Vec3{0, 0, math.Pi / 2}, 0, 0)
	assertVec(t, mgl64.Vec3{0, -1, 0.05}, at(turned, mgl64.Vec3{1, 0, 0}))
}

func assertVec(t *testing.T, want, got mgl64.Vec3, msg ...any) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, msg...)
	}
}
