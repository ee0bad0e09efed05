package pcb3d

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/breptest"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/prism"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

var unitScale = mgl64.Vec3{1, 1, 1}

func TestSniff(t *testing.T) {
	igesLine := fmt.Sprintf("%-72sS%7d\n", "kicad model", 1)
	require.Len(t, igesLine, 81)

	tests := []struct {
		name string
		head string
		ext  string
		want Format
	}{
		{"part 21", "ISO-10303-21;\nHEADER;\n", "txt", FormatSTEP},
		{"part 21 no ext", "ISO-10303-21;\n", "", FormatSTEP},
		{"step xml", `<iso_10303_28 xmlns="urn:oid:1.0.10303.28.2.1.1">` + "\n", "stpx", FormatSTEP},
		{"iges", igesLine, "dat", FormatIGES},
		{"iges crlf", strings.TrimSuffix(igesLine, "\n") + "\r\n", "", FormatIGES},
		{"comment then step", "/* generated */\nISO-10303-21;\n", "", FormatSTEP},
		{"two comments then step", "/* a */\n/* b */\nISO-10303-21;\n", "", FormatSTEP},
		{"three comments", "/* a */\n/* b */\n/* c */\nISO-10303-21;\n", "", FormatUnknown},
		{"text then step", "hello\nISO-10303-21;\n", "", FormatUnknown},
		{"long line", strings.Repeat("x", 120), "", FormatUnknown},
		{"empty", "", "", FormatUnknown},
		{"vrml", "#VRML V2.0 utf8\n", "wrl", FormatWRL},
		{"vrml upper", "", "WRL", FormatWRL},
		{"vrml gz", "", "wrz", FormatWRZ},
		{"stpz", "", "stpz", FormatSTEPZ},
		{"step gz", "", "gz", FormatSTEPZ},
		{"idf", "", "idf", FormatIDF},
		{"emn", "", "emn", FormatEMN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff([]byte(tt.head), tt.ext))
		})
	}
}

func writeModel(t *testing.T, k brep.Kernel, path string, radius float64) []byte {
	t.Helper()
	b := NewBuilder(k, DefaultConfig(), geom.Point{})
	s, err := b.Cylinder(geom.Point{}, geom.FromMM(radius), 2, 0)
	require.NoError(t, err)

	doc := brep.NewDocument("part")
	red := brep.Color{R: 1}
	doc.AddShape("body", s, &red)

	var buf bytes.Buffer
	require.NoError(t, k.WriteSTEP(&buf, doc, brep.Header{FileName: filepath.Base(path)}))
	if path != "" {
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	}
	return buf.Bytes()
}

func leafBounds(t *testing.T, k brep.Kernel, l *brep.Label) brep.Box {
	t.Helper()
	require.NotEmpty(t, l.Components)
	box := brep.EmptyBox()
	for _, c := range l.Components {
		box = brep.Merge(box, k.Bounds(k.Transform(c.Ref.Shape, c.Location)))
	}
	return box
}

func TestSniffFile(t *testing.T) {
	k := prism.New(prism.Options{})
	dir := t.TempDir()
	path := filepath.Join(dir, "part.step")
	writeModel(t, k, path, 1)

	f, err := SniffFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatSTEP, f)

	iges := filepath.Join(dir, "part.igs")
	var buf bytes.Buffer
	doc := brep.NewDocument("part")
	s, err := NewBuilder(k, DefaultConfig(), geom.Point{}).Cylinder(geom.Point{}, geom.FromMM(1), 1, 0)
	require.NoError(t, err)
	doc.AddShape("body", s, nil)
	require.NoError(t, k.WriteIGES(&buf, doc, brep.Header{FileName: "part.igs"}))
	require.NoError(t, os.WriteFile(iges, buf.Bytes(), 0o644))
	f, err = SniffFile(iges)
	require.NoError(t, err)
	assert.Equal(t, FormatIGES, f)

	_, err = SniffFile(filepath.Join(dir, "nothing.step"))
	assert.Error(t, err)
}

func TestResolveCachesPerFileAndScale(t *testing.T) {
	k := breptest.New(prism.New(prism.Options{}))
	dir := t.TempDir()
	writeModel(t, k, filepath.Join(dir, "part.step"), 1)

	r := NewModelResolver(k, brep.NewDocument("board"), zap.NewNop(), nil)
	r.BaseDir = dir

	first, err := r.Resolve("part.step", unitScale)
	require.NoError(t, err)
	second, err := r.Resolve("part.step", unitScale)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, k.Calls("ReadSTEP"))

	cached, ok := r.Cached("part.step", unitScale)
	assert.True(t, ok)
	assert.Same(t, first, cached)

	big, err := r.Resolve("part.step", mgl64.Vec3{2, 2, 2})
	require.NoError(t, err)
	assert.NotSame(t, first, big)
	assert.Equal(t, 2, k.Calls("ReadSTEP"))

	assert.InDelta(t, 1.0, leafBounds(t, k, first).Max.X, 0.02)
	assert.InDelta(t, 2.0, leafBounds(t, k, big).Max.X, 0.04)
	assert.InDelta(t, 4.0, leafBounds(t, k, big).Max.Z, 1e-6)

	leaf := first.Components[0].Ref
	require.NotNil(t, leaf.SolidColor)
	assert.InDelta(t, 1.0, leaf.SolidColor.R, 1e-9)

	_, err = r.Resolve("missing.step", unitScale)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestResolveSubstitutesVRML(t *testing.T) {
	k := prism.New(prism.Options{})
	dir := t.TempDir()
	writeModel(t, k, filepath.Join(dir, "R_0603.step"), 1)

	r := NewModelResolver(k, brep.NewDocument("board"), zap.NewNop(), nil)
	r.BaseDir = dir

	// VRML models are drawn at 2.54 scale; the STEP substitute is not
	l, err := r.Resolve("R_0603.wrl", mgl64.Vec3{2.54, 2.54, 2.54})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, leafBounds(t, k, l).Max.X, 0.02)

	_, err = r.Resolve("C_0603.wrl", unitScale)
	assert.ErrorIs(t, err, ErrModelNotFound)

	r.Substitute = false
	_, err = r.Resolve("R_0603.wrz", unitScale)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestResolveCompressedSTEP(t *testing.T) {
	k := breptest.New(prism.New(prism.Options{}))
	dir := t.TempDir()
	data := writeModel(t, k, "", 1.5)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part.stpz"), gz.Bytes(), 0o644))

	r := NewModelResolver(k, brep.NewDocument("board"), zap.NewNop(), nil)
	r.BaseDir = dir

	l, err := r.Resolve("part.stpz", unitScale)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, leafBounds(t, k, l).Max.X, 0.02)
	assert.Equal(t, 1, k.Calls("ReadSTEP"))

	_, ok := r.cache[CacheKey(filepath.Join(dir, "part.stpz"), unitScale)]
	assert.True(t, ok, "cached under the compressed file name")
	assert.Len(t, r.cache, 1)

	_, err = r.Resolve("part.stpz", unitScale)
	require.NoError(t, err)
	assert.Equal(t, 1, k.Calls("ReadSTEP"))

	var zbuf bytes.Buffer
	zz := zip.NewWriter(&zbuf)
	w, err := zz.Create("part.step")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zz.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zipped.stpz"), zbuf.Bytes(), 0o644))

	_, err = r.Resolve("zipped.stpz", unitScale)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.stpz"), []byte("not compressed"), 0o644))
	_, err = r.Resolve("broken.stpz", unitScale)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExpand(t *testing.T) {
	t.Setenv("OTX_TEST_MODELS", "/env/models")
	r := NewModelResolver(prism.New(prism.Options{}), brep.NewDocument("b"), nil, nil)
	r.Aliases = map[string]string{"KICAD8_3DMODEL_DIR": "/lib/3d", "kicad9_3dmodel_dir": "/lib9"}
	r.BaseDir = "/boards/demo"

	tests := []struct {
		in, want string
	}{
		{"${KICAD8_3DMODEL_DIR}/R.3dshapes/R_0603.step", "/lib/3d/R.3dshapes/R_0603.step"},
		{"${KICAD9_3DMODEL_DIR}/x.step", "/lib9/x.step"},
		{"$(OTX_TEST_MODELS)/x.step", "/env/models/x.step"},
		{"${NOPE}/x.step", "${NOPE}/x.step"},
		{"models/x.step", "/boards/demo/models/x.step"},
		{"/abs/x.step", "/abs/x.step"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), r.Expand(tt.in))
		})
	}
}
