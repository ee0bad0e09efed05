package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/prism"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/odb"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/pcb3d"
)

func TestDefaults(t *testing.T) {
	v := New()

	c, err := Export(v)
	require.NoError(t, err)
	assert.Equal(t, pcb3d.DefaultConfig(), c)

	o, err := ODB(v)
	require.NoError(t, err)
	assert.Equal(t, odb.DefaultConfig(), o)

	assert.Equal(t, prism.DefaultOptions, Kernel(v))
	assert.Equal(t, "info", Logging(v).Level)
}

func TestReadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "otx.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[step]
fuse_shapes = true
include_silkscreen = true
component_filter = ["U*", "J1"]
origin = "user"
origin_x = 12.5
origin_y = -3
copper_color = "#ff8000"

[step.model_aliases]
KICAD8_3DMODEL_DIR = "/usr/share/kicad/3dmodels"

[odb]
units = "inch"
precision = 5
compress = "zip"

[log]
level = "debug"
`), 0o644))

	v := New()
	require.NoError(t, Read(v, file))

	c, err := Export(v)
	require.NoError(t, err)
	assert.True(t, c.FuseShapes)
	assert.True(t, c.IncludeSilkscreen)
	assert.True(t, c.PushBoardBody, "untouched keys keep their default")
	assert.Equal(t, []string{"U*", "J1"}, c.ComponentFilter)
	assert.Equal(t, pcb3d.OriginUser, c.Origin)
	assert.Equal(t, [2]float64{12.5, -3}, c.UserOrigin)
	assert.Equal(t, brep.Color{R: 1, G: 128.0 / 255, B: 0}, c.CopperColor)
	// viper folds keys to lower case
	assert.Equal(t, map[string]string{"kicad8_3dmodel_dir": "/usr/share/kicad/3dmodels"}, c.ModelAliases)

	o, err := ODB(v)
	require.NoError(t, err)
	assert.Equal(t, odb.Config{Units: odb.UnitsInch, Precision: 5, Compress: odb.CompressZIP}, o)

	assert.Equal(t, "debug", Logging(v).Level)
}

func TestReadMissing(t *testing.T) {
	assert.NoError(t, Read(New(), ""), "no file in the search path")
	assert.Error(t, Read(New(), filepath.Join(t.TempDir(), "nope.toml")))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("OTX_ODB_PRECISION", "3")
	t.Setenv("OTX_STEP_BOARD_ONLY", "true")

	v := New()
	o, err := ODB(v)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Precision)

	c, err := Export(v)
	require.NoError(t, err)
	assert.True(t, c.BoardOnly)
}

func TestInvalid(t *testing.T) {
	v := New()
	v.Set(ODBPrecision, 12)
	_, err := ODB(v)
	assert.ErrorIs(t, err, odb.ErrPrecision)

	v = New()
	v.Set(StepOrigin, "middle")
	_, err = Export(v)
	assert.Error(t, err)

	v = New()
	v.Set(StepMinDistance, 0)
	_, err = Export(v)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    brep.Color
		wantErr bool
	}{
		{in: "0.2,0.2,0.2", want: brep.Color{R: 0.2, G: 0.2, B: 0.2}},
		{in: " 1, 0 ,0.5", want: brep.Color{R: 1, B: 0.5}},
		{in: "#000000", want: brep.Color{}},
		{in: "#FFFFFF", want: brep.Color{R: 1, G: 1, B: 1}},
		{in: "#fff", wantErr: true},
		{in: "1,2,3", wantErr: true},
		{in: "red", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	c := pcb3d.DefaultConfig().CopperColor
	back, err := ParseColor(FormatColor(c))
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
