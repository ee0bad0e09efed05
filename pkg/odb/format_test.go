package odb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

func TestDouble2String(t *testing.T) {
	tests := []struct {
		v      float64
		digits int
		want   string
	}{
		{1.5, 4, "1.5"},
		{2, 4, "2"},
		{10, 0, "10"},
		{0, 4, "0"},
		{-0.00001, 4, "0"},
		{math.Copysign(0, -1), 3, "0"},
		{-1.25, 4, "-1.25"},
		{123.45678, 2, "123.46"},
		{0.1 + 0.2, 7, "0.3"},
		{math.NaN(), 4, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Double2String(tt.v, tt.digits), "Double2String(%v, %d)", tt.v, tt.digits)
	}
}

func TestFormatterUnits(t *testing.T) {
	mm := Formatter{Units: UnitsMM, Precision: 4}
	assert.Equal(t, "1.5", mm.X(1_500_000))
	assert.Equal(t, "-1.5", mm.Y(1_500_000))
	assert.Equal(t, "0", mm.Y(0))
	assert.Equal(t, "10 -5", mm.XY(geom.PtMM(10, 5)))
	assert.Equal(t, "1500", mm.Size(1_500_000))
	assert.Equal(t, "1234.6", mm.Size(1_234_567))

	inch := Formatter{Units: UnitsInch, Precision: 4}
	assert.Equal(t, "1", inch.Length(25_400_000))
	assert.Equal(t, "0.1", inch.Length(2_540_000))
	assert.Equal(t, "10", inch.Size(254_000))
}

func TestFormatterAngle(t *testing.T) {
	f := Formatter{Precision: 4}
	assert.Equal(t, "270", f.Angle(-90))
	assert.Equal(t, "0", f.Angle(360))
	assert.Equal(t, "0", f.Angle(-0.0))
	assert.Equal(t, "0", f.Angle(359.99999))
	assert.Equal(t, "45.5", f.Angle(45.5))
}

func TestLegalNames(t *testing.T) {
	assert.Equal(t, "f.cu", LegalEntityName("F.Cu"))
	assert.Equal(t, "in1.cu", LegalEntityName("In1.Cu"))
	assert.Equal(t, "my_board__v2_", LegalEntityName("My Board (v2)"))
	assert.Equal(t, "a+b-c_d.e", LegalEntityName("a+b-c_d.e"))
	assert.Equal(t, "resistor_smd_r_0603", LegalEntityName("Resistor_SMD:R_0603"))

	assert.Equal(t, NoNet, LegalNetName(""))
	assert.Equal(t, "Net-(R1-Pad1)", LegalNetName("Net-(R1-Pad1)"))
	assert.Equal(t, "VCC_3V3", LegalNetName("VCC 3V3"))
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Precision = 9
	assert.ErrorIs(t, cfg.Validate(), ErrPrecision)

	u, err := ParseUnits("inch")
	require.NoError(t, err)
	assert.Equal(t, UnitsInch, u)
	_, err = ParseUnits("furlong")
	assert.Error(t, err)

	c, err := ParseCompression("zip")
	require.NoError(t, err)
	assert.Equal(t, CompressZIP, c)
	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressNone, c)
}
