package pcb3d

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

func TestCopperThicknessSign(t *testing.T) {
	cu := geom.ToMM(board.DefaultCopperThickness)
	for n := 1; n <= 32; n++ {
		z := NewZPlacer(board.DefaultStackup(n, 0))
		for _, l := range board.CopperLayers(n).Layers() {
			_, th, err := z.LayerZPlacement(l)
			require.NoError(t, err, "%d layers, %s", n, l)
			assert.InDelta(t, cu, math.Abs(th), 1e-9, "%d layers, %s", n, l)
			switch l {
			case board.FCu:
				assert.Greater(t, th, 0.0, "%d layers", n)
			case board.BCu:
				assert.Less(t, th, 0.0, "%d layers", n)
			}
		}

		pos, th, err := z.BoardBodyZPlacement()
		require.NoError(t, err, "%d layers", n)
		assert.Equal(t, 0.0, pos)
		assert.Greater(t, th, 0.0)
	}
}

func TestSingleSidedPlacement(t *testing.T) {
	z := NewZPlacer(board.DefaultStackup(1, 1_600_000))

	pos, th, err := z.CopperZPlacement(board.FCu)
	require.NoError(t, err)
	assert.InDelta(t, 1.565, pos, 1e-9)
	assert.InDelta(t, 0.035, th, 1e-9)

	pos, th, err = z.CopperZPlacement(board.BCu)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
	assert.True(t, math.Signbit(th), "back faces point down")

	pos, th, err = z.BoardBodyZPlacement()
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
	assert.InDelta(t, 1.565, th, 1e-9)

	lo, hi, err := z.CopperSpan(board.FCu, board.BCu)
	require.NoError(t, err)
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 1.6, hi, 1e-9)

	pos, _, err = z.LayerZPlacement(board.BSilkS)
	require.NoError(t, err)
	assert.InDelta(t, -SilkOffset, pos, 1e-9)
}

func TestCopperLayersDoNotOverlap(t *testing.T) {
	z := NewZPlacer(board.DefaultStackup(4, 1_600_000))

	type span struct{ lo, hi float64 }
	var spans []span
	for _, l := range board.CopperLayers(4).Layers() {
		p, th, err := z.CopperZPlacement(l)
		require.NoError(t, err)
		spans = append(spans, span{math.Min(p, p+th), math.Max(p, p+th)})
	}
	// front to back: every layer sits above the next one
	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i-1].lo, spans[i].hi-1e-9, "layer %d", i)
	}

	fp, _, err := z.CopperZPlacement(board.FCu)
	require.NoError(t, err)
	assert.InDelta(t, 1.53, fp, 1e-5)

	in2 := board.In1 + 1
	p, th, err := z.CopperZPlacement(in2)
	require.NoError(t, err)
	assert.Less(t, th, 0.0, "copper on prepreg grows down from its top")
	assert.InDelta(t, 0.521666, p, 1e-5)
}

func TestFlatLayerPlacement(t *testing.T) {
	z := NewZPlacer(board.DefaultStackup(2, 1_600_000))

	p, th, err := z.LayerZPlacement(board.FSilkS)
	require.NoError(t, err)
	assert.InDelta(t, 1.565+SilkOffset, p, 1e-9)
	assert.Equal(t, 0.0, th)
	assert.False(t, math.Signbit(th))

	p, th, err = z.LayerZPlacement(board.BMask)
	require.NoError(t, err)
	assert.InDelta(t, -0.035-MaskOffset, p, 1e-9)
	assert.True(t, math.Signbit(th), "back layers face down")

	_, _, err = z.LayerZPlacement(board.EdgeCuts)
	assert.ErrorIs(t, err, ErrZPlacement)
}

func TestZPlacementErrors(t *testing.T) {
	st := board.DefaultStackup(2, 0)
	var noFront board.Stackup
	for _, it := range st.Items {
		if it.Layer != board.FCu {
			noFront.Items = append(noFront.Items, it)
		}
	}
	z := NewZPlacer(noFront)
	_, _, err := z.CopperZPlacement(board.FCu)
	assert.ErrorIs(t, err, ErrZPlacement)
	_, _, err = z.BoardBodyZPlacement()
	assert.ErrorIs(t, err, ErrZPlacement)
}

func TestCopperSpan(t *testing.T) {
	z := NewZPlacer(board.DefaultStackup(2, 1_600_000))
	lo, hi, err := z.CopperSpan(board.FCu, board.BCu)
	require.NoError(t, err)
	assert.InDelta(t, -0.035, lo, 1e-9)
	assert.InDelta(t, 1.565, hi, 1e-9)
}
