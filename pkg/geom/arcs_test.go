package geom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regularPolygon(center Point, radius float64, n int, phase float64) Chain {
	pts := make([]Point, n)
	for i := range pts {
		t := phase + 2*math.Pi*float64(i)/float64(n)
		pts[i] = Point{
			X: center.X + int64(math.Round(radius*math.Cos(t))),
			Y: center.Y + int64(math.Round(radius*math.Sin(t))),
		}
	}
	return NewChain(pts)
}

func flattenedRoundRect() Chain {
	rr := RoundRectChain(Pt(0, 0), FromMM(20), FromMM(10), FromMM(2), 0)
	return NewChain(rr.Polyline(2000))
}

func TestMaxTurnAngle(t *testing.T) {
	tests := []struct {
		mm   float64
		want float64
	}{
		{0.01, 46},
		{0.1, 46},
		{0.55, 38},
		{1, 30},
		{5, 30},
	}
	for _, tt := range tests {
		got := maxTurnAngle(tt.mm * UnitsPerMM)
		assert.InDelta(t, tt.want, got, 1e-9, "length %.2f mm", tt.mm)
	}
}

func TestApproximateRoundRect(t *testing.T) {
	src := flattenedRoundRect()
	require.Greater(t, src.PointCount(), 40)

	out := ApproximateLineChainWithArcs(src, DefaultArcTolerance())
	assert.Equal(t, 4, out.ArcCount())
	assert.Equal(t, 8, out.PointCount())
	assert.False(t, out.SelfIntersects(1000))

	// replaced points stay on the rounded corners
	for _, e := range out.Edges {
		if e.Kind != ArcEdge {
			continue
		}
		assert.InDelta(t, float64(FromMM(2)), e.Arc().Radius(), 0.02*float64(FromMM(2)))
	}
}

func TestApproximateIsIdempotent(t *testing.T) {
	tol := DefaultArcTolerance()
	inputs := map[string]Chain{
		"roundrect": flattenedRoundRect(),
		"polygon64": regularPolygon(Pt(0, 0), 5*UnitsPerMM, 64, 0),
		"square":    RectChain(Pt(0, 0), FromMM(10), FromMM(10), 0),
		"stadium":   NewChain(OvalChain(Pt(0, 0), FromMM(8), FromMM(3), 30).Polyline(1500)),
	}
	for name, src := range inputs {
		t.Run(name, func(t *testing.T) {
			once := ApproximateLineChainWithArcs(src, tol)
			twice := ApproximateLineChainWithArcs(once, tol)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Errorf("second pass changed the chain (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestApproximateCollapsesCircle(t *testing.T) {
	src := regularPolygon(Pt(FromMM(3), FromMM(-2)), 5*UnitsPerMM, 64, 0.1)
	out := ApproximateLineChainWithArcs(src, DefaultArcTolerance())
	require.True(t, out.IsCircle(), "got %d edges, %d arcs", out.PointCount(), out.ArcCount())

	fit, ok := DetectCircle(out, 10)
	require.True(t, ok)
	assert.InDelta(t, float64(FromMM(3)), float64(fit.Center.X), 2000)
	assert.InDelta(t, float64(FromMM(-2)), float64(fit.Center.Y), 2000)
	assert.InDelta(t, float64(5*UnitsPerMM), float64(fit.Radius), 2000)
}

func TestApproximateKeepsSquare(t *testing.T) {
	src := RectChain(Pt(0, 0), FromMM(10), FromMM(10), 0)
	out := ApproximateLineChainWithArcs(src, DefaultArcTolerance())
	assert.Equal(t, src, out)
}

func TestApproximateNeverSelfIntersects(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tol := DefaultArcTolerance()
	for iter := 0; iter < 200; iter++ {
		n := 12 + rng.Intn(60)
		radius := float64(FromMM(0.5 + rng.Float64()*10))
		noise := rng.Float64() * 0.05
		pts := make([]Point, n)
		for i := range pts {
			t := 2 * math.Pi * float64(i) / float64(n)
			r := radius * (1 + noise*(rng.Float64()*2-1))
			if rng.Intn(10) == 0 {
				r *= 0.6
			}
			pts[i] = Point{X: int64(r * math.Cos(t)), Y: int64(r * math.Sin(t))}
		}
		src := NewChain(pts)
		if src.SelfIntersects(tol.FlattenError) {
			continue
		}
		out := ApproximateLineChainWithArcs(src, tol)
		if out.ArcCount() > 0 {
			assert.False(t, out.SelfIntersects(tol.FlattenError), "iteration %d produced a crossing chain", iter)
		}
	}
}

func TestMergeWrapArcs(t *testing.T) {
	r := int64(FromMM(4))
	at := func(deg float64) Point {
		a := deg * math.Pi / 180
		return Point{int64(math.Round(float64(r) * math.Cos(a))), int64(math.Round(float64(r) * math.Sin(a)))}
	}
	edges := []Edge{
		ArcThrough(at(0), at(45), at(90)),
		Line(at(90), Pt(-r*3, 0)),
		Line(Pt(-r*3, 0), at(-90)),
		ArcThrough(at(-90), at(-45), at(0)),
	}
	out := mergeWrapArcs(edges, DefaultArcTolerance())
	require.Len(t, out, 3)
	assert.Equal(t, ArcEdge, out[0].Kind)
	assert.Equal(t, at(-90), out[0].Start)
	assert.Equal(t, at(90), out[0].End)
	assert.InDelta(t, math.Pi, math.Abs(out[0].Arc().Sweep()), 1e-3)
}

func TestDetectCircle(t *testing.T) {
	tests := []struct {
		name  string
		chain Chain
		want  bool
	}{
		{"circle edge", CircleChain(Pt(10, 10), 5000), true},
		{"32-gon", regularPolygon(Pt(0, 0), 1e6, 32, 0), true},
		{"square", RectChain(Pt(0, 0), 1e6, 1e6, 0), false},
		{"hexagon", regularPolygon(Pt(0, 0), 1e6, 6, 0), false},
		{"octagon", regularPolygon(Pt(0, 0), 10e6, 8, math.Pi/8), false},
		{"coarse 32-gon", regularPolygon(Pt(0, 0), 10e6, 32, 0), false},
		{"ellipse", func() Chain {
			pts := make([]Point, 40)
			for i := range pts {
				a := 2 * math.Pi * float64(i) / 40
				pts[i] = Pt(int64(2e6*math.Cos(a)), int64(1e6*math.Sin(a)))
			}
			return NewChain(pts)
		}(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DetectCircle(tt.chain, 5000)
			assert.Equal(t, tt.want, ok)
		})
	}
}
