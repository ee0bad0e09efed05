package brep

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

type fakeShape struct{}

func (fakeShape) Kind() ShapeKind { return KindSolid }

func TestInstancesComposeLocations(t *testing.T) {
	doc := NewDocument("board")
	part := doc.NewShape("R1_body", fakeShape{}, nil)
	asm := doc.NewAssembly("R1")
	asm.AddComponent("body", part, mgl64.Translate3D(0, 0, 1))
	doc.Root.AddComponent("R1", asm, mgl64.Translate3D(10, 0, 0))
	doc.AddShape("board_PCB", fakeShape{}, nil)

	inst := doc.Instances()
	require.Len(t, inst, 2)
	assert.Equal(t, "R1/body", inst[0].Path)
	p := inst[0].Location.Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	assert.Equal(t, mgl64.Vec4{10, 0, 1, 1}, p)
	assert.Equal(t, "board_PCB", inst[1].Path)
	assert.Same(t, part, doc.Find("R1_body"))
}

func TestColorPriority(t *testing.T) {
	generic := Color{R: 1}
	solid := Color{G: 1}
	l := &Label{Color: &generic}
	c, ok := l.FaceColor(3)
	require.True(t, ok)
	assert.Equal(t, generic, c)

	l.SolidColor = &solid
	c, _ = l.FaceColor(3)
	assert.Equal(t, solid, c)

	l.FaceColors = map[int]Color{3: {B: 1}}
	c, _ = l.FaceColor(3)
	assert.Equal(t, Color{B: 1}, c)
	c, _ = l.FaceColor(2)
	assert.Equal(t, solid, c)
}

func TestWireValidate(t *testing.T) {
	assert.NoError(t, CircleWire(r2.Vec{}, 1).Validate(1e-6))

	sq := WireFromChain(geom.RectChain(geom.PtMM(0, 5), geom.FromMM(2), geom.FromMM(2), 0))
	require.NoError(t, sq.Validate(1e-6))
	// board Y down becomes model Y up
	for _, e := range sq.Edges {
		assert.InDelta(t, -5.0, e.Start.Y, 1.0+1e-9)
	}

	assert.ErrorIs(t, Wire{}.Validate(1e-6), ErrInvalidWire)

	two := Wire{Edges: []Edge{{Start: r2.Vec{}, End: r2.Vec{X: 1}}, {Start: r2.Vec{X: 1}, End: r2.Vec{}}}}
	assert.ErrorIs(t, two.Validate(1e-6), ErrInvalidWire)
}

func TestBoxHelpers(t *testing.T) {
	b := EmptyBox()
	assert.True(t, IsVoid(b))
	b = Enlarge(b, r3.Vec{X: 1, Y: 2, Z: 3})
	b = Enlarge(b, r3.Vec{X: -1, Y: 0, Z: 0})
	assert.False(t, IsVoid(b))
	assert.Equal(t, r3.Vec{X: -1, Y: 0, Z: 0}, b.Min)

	other := Box{Min: r3.Vec{X: 0.5, Y: 1, Z: 1}, Max: r3.Vec{X: 4, Y: 4, Z: 4}}
	assert.True(t, Overlaps(b, other))
	m := Merge(b, other)
	assert.Equal(t, r3.Vec{X: 4, Y: 4, Z: 4}, m.Max)
	assert.Equal(t, other, Merge(EmptyBox(), other))
}

func TestReport(t *testing.T) {
	var r Report
	assert.True(t, r.OK())
	r.Warnf("tool %d skipped", 3)
	var o Report
	o.Errorf("boom")
	r.Merge(o)
	assert.False(t, r.OK())
	assert.Equal(t, "error: boom\nwarning: tool 3 skipped", r.String())
}
