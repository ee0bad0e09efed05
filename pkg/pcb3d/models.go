package pcb3d

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceExport/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Format is the detected kind of a model file
type Format int

const (
	FormatUnknown Format = iota
	FormatSTEP
	FormatSTEPZ
	FormatIGES
	FormatWRL
	FormatWRZ
	FormatIDF
	FormatEMN
)

func (f Format) String() string {
	switch f {
	case FormatSTEP:
		return "STEP"
	case FormatSTEPZ:
		return "STEPZ"
	case FormatIGES:
		return "IGES"
	case FormatWRL:
		return "WRL"
	case FormatWRZ:
		return "WRZ"
	case FormatIDF:
		return "IDF"
	case FormatEMN:
		return "EMN"
	}
	return "unknown"
}

// sniffLen is how much of a file Sniff needs: three header lines
const sniffLen = 3 * 81

// Sniff detects the format of a model file from its extension (without
// the dot) and the first bytes of its content.
//
// The extension decides for VRML, IDF and compressed STEP. Otherwise up to
// three lines of at most 81 bytes are examined: a Part 21 header or the
// STEP XML namespace means STEP, an 'S' in column 73 followed by the end of
// an 80 column line means IGES. Only lines starting a "/*" comment let the
// scan move on to the next line.
func Sniff(head []byte, ext string) Format {
	switch strings.ToLower(ext) {
	case "wrl":
		return FormatWRL
	case "wrz":
		return FormatWRZ
	case "idf":
		return FormatIDF
	case "emn":
		return FormatEMN
	case "stpz", "gz":
		return FormatSTEPZ
	}

	rest := head
	for i := 0; i < 3 && len(rest) > 0; i++ {
		var line [82]byte
		n := 0
		for n < 81 && n < len(rest) {
			line[n] = rest[n]
			n++
			if rest[n-1] == '\n' {
				break
			}
		}
		rest = rest[n:]

		if bytes.HasPrefix(line[:], []byte("ISO-10303-21;")) {
			return FormatSTEP
		}
		if bytes.Contains(line[:n], []byte("urn:oid:1.0.10303.")) {
			return FormatSTEP
		}
		if line[72] == 'S' && (line[80] == 0 || line[80] == '\r' || line[80] == '\n') {
			return FormatIGES
		}
		if !bytes.HasPrefix(line[:], []byte("/*")) {
			break
		}
	}
	return FormatUnknown
}

// SniffFile reads the start of path and sniffs it
func SniffFile(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f := Sniff(nil, ext); f != FormatUnknown {
		return f, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	return Sniff(head[:n], ext), nil
}

// substituteExts is the order in which siblings of a VRML model are tried
var substituteExts = []string{
	"stp", "step", "STP", "STEP", "Stp", "Step",
	"stpz", "stpZ", "STPZ", "step.gz", "stp.gz",
	"iges", "IGES", "igs", "IGS",
}

// ModelResolver reads component models into a destination document, once
// per distinct file and scale
type ModelResolver struct {
	// Substitute enables looking for a STEP or IGES sibling of VRML
	// models
	Substitute bool
	// Aliases resolves ${VAR} and $(VAR) in model paths before the
	// environment does
	Aliases map[string]string
	// BaseDir anchors relative model paths, usually the board directory
	BaseDir string

	k       brep.Kernel
	dst     *brep.Document
	log     *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]*brep.Label
}

// NewModelResolver returns a resolver merging models into dst
func NewModelResolver(k brep.Kernel, dst *brep.Document, log *zap.Logger, m *metrics.Metrics) *ModelResolver {
	return &ModelResolver{
		Substitute: true,
		k:          k,
		dst:        dst,
		log:        logging.OrNop(log),
		metrics:    m,
		cache:      map[string]*brep.Label{},
	}
}

// CacheKey is the key a model is cached under
func CacheKey(path string, scale mgl64.Vec3) string {
	return fmt.Sprintf("%s_%f_%f_%f", path, scale.X(), scale.Y(), scale.Z())
}

// Cached returns the label cached for path and scale
func (r *ModelResolver) Cached(path string, scale mgl64.Vec3) (*brep.Label, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.cache[CacheKey(r.Expand(path), scale)]
	return l, ok
}

// Resolve returns the label of the model at path scaled by scale, reading
// and converting the file on first use
func (r *ModelResolver) Resolve(path string, scale mgl64.Vec3) (*brep.Label, error) {
	full := r.Expand(path)
	key := CacheKey(full, scale)

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.cache[key]; ok {
		r.metrics.Model("cached")
		return l, nil
	}

	src, substituted, err := r.load(full, 0)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			r.metrics.Model("missing")
		} else {
			r.metrics.Model("failed")
		}
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	if substituted {
		// display scale of VRML models must not apply to the substitute
		scale = mgl64.Vec3{1, 1, 1}
		r.metrics.Model("substituted")
	} else {
		r.metrics.Model("loaded")
	}

	name := strings.TrimSuffix(filepath.Base(full), filepath.Ext(full))
	label, err := r.transfer(src, name, scale)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	r.cache[key] = label
	return label, nil
}

// load reads the document at path, following compression and VRML
// substitution
func (r *ModelResolver) load(path string, depth int) (*brep.Document, bool, error) {
	if depth > 2 {
		return nil, false, fmt.Errorf("%w: nested compressed model", ErrUnsupportedFormat)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	format := Sniff(nil, ext)
	if format != FormatWRL && format != FormatWRZ {
		if _, err := os.Stat(path); err != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		var err error
		if format, err = SniffFile(path); err != nil {
			return nil, false, err
		}
	}

	switch format {
	case FormatSTEP:
		doc, err := r.read(path, r.k.ReadSTEP)
		return doc, false, err
	case FormatIGES:
		doc, err := r.read(path, r.k.ReadIGES)
		return doc, false, err
	case FormatSTEPZ:
		tmp, err := decompressModel(path)
		if err != nil {
			return nil, false, err
		}
		defer os.Remove(tmp)
		doc, _, err := r.load(tmp, depth+1)
		return doc, false, err
	case FormatWRL, FormatWRZ:
		if !r.Substitute {
			return nil, false, fmt.Errorf("%w: %s models are not exported and substitution is off", ErrUnsupportedFormat, format)
		}
		alt, ok := findSubstitute(path)
		if !ok {
			return nil, false, fmt.Errorf("%w: no STEP or IGES sibling for %s", ErrModelNotFound, filepath.Base(path))
		}
		r.log.Debug("substituting model", zap.String("vrml", path), zap.String("with", alt))
		doc, _, err := r.load(alt, depth+1)
		return doc, true, err
	}
	return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func (r *ModelResolver) read(path string, reader func(io.Reader) (*brep.Document, error)) (*brep.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := reader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// findSubstitute looks for a sibling of a VRML file with the same base
// name and a STEP or IGES extension
func findSubstitute(path string) (string, bool) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range substituteExts {
		alt := base + "." + ext
		if st, err := os.Stat(alt); err == nil && !st.IsDir() {
			return alt, true
		}
	}
	return "", false
}

// decompressModel inflates a compressed STEP file into a temporary .step
// file. Plain gzip is tried first, then a zip container whose first file
// is taken.
func decompressModel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var content []byte
	if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		content, err = io.ReadAll(zr)
		if err != nil {
			content = nil
		}
	}
	if content == nil {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil || len(zr.File) == 0 {
			return "", fmt.Errorf("%w: %s is neither gzip nor zip", ErrUnsupportedFormat, filepath.Base(path))
		}
		rc, err := zr.File[0].Open()
		if err != nil {
			return "", err
		}
		content, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("inflate %s: %w", filepath.Base(path), err)
		}
	}

	f, err := os.CreateTemp("", "otx-model-*.step")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// transfer copies every placed shape of src into a new assembly of the
// destination document. Non-unit scales are applied to the shapes;
// face, solid and generic colours are carried over.
func (r *ModelResolver) transfer(src *brep.Document, name string, scale mgl64.Vec3) (*brep.Label, error) {
	inst := src.Instances()
	if len(inst) == 0 {
		return nil, fmt.Errorf("%w: model has no shapes", ErrUnsupportedFormat)
	}

	scaled := scale != mgl64.Vec3{1, 1, 1}
	asm := r.dst.NewAssembly(name)
	for _, in := range inst {
		m := in.Location
		if scaled {
			m = mgl64.Scale3D(scale.X(), scale.Y(), scale.Z()).Mul4(m)
		}
		shape := in.Label.Shape
		if !m.ApproxEqual(mgl64.Ident4()) {
			shape = r.k.Transform(shape, m)
		}

		leaf := r.dst.NewShape(in.Label.Name, shape, copyColor(in.Label.Color))
		leaf.SolidColor = copyColor(in.Label.SolidColor)
		if len(in.Label.FaceColors) > 0 {
			leaf.FaceColors = make(map[int]brep.Color, len(in.Label.FaceColors))
			for k, v := range in.Label.FaceColors {
				leaf.FaceColors[k] = v
			}
		}
		asm.AddComponent(in.Path, leaf, mgl64.Ident4())
	}
	return asm, nil
}

func copyColor(c *brep.Color) *brep.Color {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

var pathVar = regexp.MustCompile(`\$\{([^}]+)\}|\$\(([^)]+)\)`)

// Expand resolves ${VAR} and $(VAR) references in a model path from the
// aliases and the environment, then anchors relative paths at BaseDir.
// Unknown variables are left in place.
func (r *ModelResolver) Expand(path string) string {
	out := pathVar.ReplaceAllStringFunc(path, func(m string) string {
		sub := pathVar.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if v, ok := r.Aliases[name]; ok {
			return v
		}
		// aliases loaded from a config file have lower-case keys
		if v, ok := r.Aliases[strings.ToLower(name)]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
	out = filepath.FromSlash(out)
	if !filepath.IsAbs(out) && r.BaseDir != "" && !strings.HasPrefix(out, "$") {
		out = filepath.Join(r.BaseDir, out)
	}
	return out
}
