package geom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOutlineRectangleWithHole(t *testing.T) {
	mm := func(x, y float64) Point { return PtMM(x, y) }
	edges := []Edge{
		// shuffled and partly reversed rectangle
		Line(mm(0, 0), mm(50, 0)),
		Line(mm(50, 30), mm(50, 0)),
		Line(mm(0, 30), mm(0, 0)),
		Line(mm(50, 30), mm(0, 30)),
		// mounting hole
		Circle(mm(10, 10), FromMM(1.6)),
	}

	polys, err := BuildOutline(edges, 1000)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Len(t, polys[0].Outline.Edges, 4)
	require.Len(t, polys[0].Holes, 1)
	assert.True(t, polys[0].Holes[0].IsCircle())

	assert.True(t, polys[0].Contains(mm(30, 20)))
	assert.False(t, polys[0].Contains(mm(10, 10)))
	assert.False(t, polys[0].Contains(mm(60, 10)))
}

func TestBuildOutlineJoinsWithinTolerance(t *testing.T) {
	edges := []Edge{
		Line(Pt(0, 0), Pt(1000000, 0)),
		Line(Pt(1000000, 5), Pt(1000000, 1000000)),
		ArcThrough(Pt(1000000, 1000000), Pt(500000, 1200000), Pt(3, 1000000)),
		Line(Pt(0, 1000000), Pt(0, 0)),
	}
	polys, err := BuildOutline(edges, 10)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	ch := polys[0].Outline
	assert.Equal(t, 1, ch.ArcCount())
	for i, e := range ch.Edges {
		next := ch.Edges[(i+1)%len(ch.Edges)]
		assert.Equal(t, e.End, next.Start, "edge %d is not joined", i)
	}
}

func TestBuildOutlineReportsOpenContour(t *testing.T) {
	edges := []Edge{
		Line(Pt(0, 0), Pt(1000, 0)),
		Line(Pt(1000, 0), Pt(1000, 1000)),
	}
	polys, err := BuildOutline(edges, 1)
	assert.Empty(t, polys)
	assert.True(t, errors.Is(err, ErrOpenContour))
}

func TestNestContours(t *testing.T) {
	outer := RectChain(Pt(0, 0), 100, 100, 0)
	hole := RectChain(Pt(0, 0), 60, 60, 0)
	island := RectChain(Pt(0, 0), 20, 20, 0)
	apart := RectChain(Pt(500, 0), 10, 10, 0)

	polys := NestContours([]Chain{island, hole, apart, outer})
	require.Len(t, polys, 3)
	assert.Len(t, polys[0].Holes, 1)
	assert.Empty(t, polys[1].Holes)
	assert.Empty(t, polys[2].Holes)
}

func TestPadShapes(t *testing.T) {
	c := PtMM(10, 10)
	tests := []struct {
		name   string
		chain  Chain
		w, h   float64
		points int
		arcs   int
	}{
		{"rect", RectChain(c, FromMM(2), FromMM(1), 0), 2, 1, 4, 0},
		{"rect rotated", RectChain(c, FromMM(2), FromMM(1), 90), 1, 2, 4, 0},
		{"roundrect", RoundRectChain(c, FromMM(2), FromMM(1), FromMM(0.25), 0), 2, 1, 8, 4},
		{"chamfered", ChamferedRectChain(c, FromMM(2), FromMM(2), FromMM(0.5), ChamferTopLeft|ChamferBottomRight, 0, 0), 2, 2, 6, 0},
		{"oval", OvalChain(c, FromMM(3), FromMM(1), 0), 3, 1, 4, 2},
		{"trapezoid", TrapezoidChain(c, FromMM(2), FromMM(2), PtMM(0, 0.5), 0), 2.5, 2, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.chain.Bounds()
			assert.InDelta(t, tt.w, ToMM(b.Width()), 0.01)
			assert.InDelta(t, tt.h, ToMM(b.Height()), 0.01)
			assert.Equal(t, tt.points, tt.chain.PointCount())
			assert.Equal(t, tt.arcs, tt.chain.ArcCount())
			assert.False(t, tt.chain.SelfIntersects(100))
		})
	}
}

func TestThickSegmentDegenerates(t *testing.T) {
	ch := ThickSegmentChain(Pt(0, 0), Pt(10, 0), 200000, 1000)
	assert.True(t, ch.IsCircle())

	ch = ThickSegmentChain(Pt(0, 0), Pt(1000000, 0), 200000, 1000)
	assert.Equal(t, 2, ch.ArcCount())
	b := ch.Bounds()
	assert.InDelta(t, 1.2, ToMM(b.Width()), 0.001)
	assert.InDelta(t, 0.2, ToMM(b.Height()), 0.001)
}
