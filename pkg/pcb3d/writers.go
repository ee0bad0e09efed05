package pcb3d

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// OutputFormat selects a writer
type OutputFormat int

const (
	OutputSTEP OutputFormat = iota
	OutputIGES
	OutputGLTF
	OutputBREP
	OutputXAO
)

var outputNames = map[string]OutputFormat{
	"step": OutputSTEP,
	"stp":  OutputSTEP,
	"iges": OutputIGES,
	"igs":  OutputIGES,
	"gltf": OutputGLTF,
	"glb":  OutputGLTF,
	"brep": OutputBREP,
	"xao":  OutputXAO,
}

// ParseOutputFormat resolves a format name or file extension
func ParseOutputFormat(s string) (OutputFormat, error) {
	if f, ok := outputNames[strings.ToLower(strings.TrimPrefix(s, "."))]; ok {
		return f, nil
	}
	return OutputSTEP, fmt.Errorf("unknown output format %q", s)
}

func (f OutputFormat) String() string {
	switch f {
	case OutputIGES:
		return "iges"
	case OutputGLTF:
		return "glb"
	case OutputBREP:
		return "brep"
	case OutputXAO:
		return "xao"
	}
	return "step"
}

// Ext returns the usual file extension, without the dot
func (f OutputFormat) Ext() string {
	if f == OutputSTEP {
		return "step"
	}
	return f.String()
}

// now is replaced in tests
var now = time.Now

// Write serialises the assembly to path in format f
func (s *Session) Write(f OutputFormat, path string) error {
	switch f {
	case OutputSTEP:
		return s.WriteSTEP(path)
	case OutputIGES:
		return s.WriteIGES(path)
	case OutputGLTF:
		return s.WriteGLTF(path)
	case OutputBREP:
		return s.WriteBREP(path)
	case OutputXAO:
		return s.WriteXAO(path)
	}
	return fmt.Errorf("unknown output format %d", f)
}

func (s *Session) checkOutline() error {
	if !s.IsBoardOutlineValid() {
		return fmt.Errorf("%w: the board has no closed Edge.Cuts outline, nothing to export", ErrNoBoardOutline)
	}
	return nil
}

func (s *Session) header(path string) brep.Header {
	return brep.Header{
		FileName:     asciiOnly(filepath.Base(path)),
		Description:  "KiCad electronic assembly",
		Author:       s.cfg.Author,
		Organization: s.cfg.Organization,
		System:       version.Generator(),
		Timestamp:    now(),
	}
}

// asciiOnly replaces non 7-bit characters, which STEP product names cannot
// carry
func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r > 0x7e || r < 0x20 {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WriteSTEP writes the assembly as STEP through a temporary file in the
// target directory, renamed over path once complete
func (s *Session) WriteSTEP(path string) error {
	if err := s.checkOutline(); err != nil {
		return err
	}
	defer s.metrics.Stage("write_step")()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s.doc.Root.Name = asciiOnly(base)
	h := s.header(path)

	err := fsutil.WriteAtomic(path, "$tempfile$.step", func(w io.Writer) error {
		return s.k.WriteSTEP(w, s.doc, h)
	})
	if err != nil {
		return fmt.Errorf("write STEP %s: %w", path, err)
	}
	s.wrote("step", path)
	return nil
}

// WriteIGES writes the assembly as IGES directly to path
func (s *Session) WriteIGES(path string) error {
	if err := s.checkOutline(); err != nil {
		return err
	}
	defer s.metrics.Stage("write_iges")()

	h := s.header(path)
	err := fsutil.WriteDirect(path, func(w io.Writer) error {
		return s.k.WriteIGES(w, s.doc, h)
	})
	if err != nil {
		return fmt.Errorf("write IGES %s: %w", path, err)
	}
	s.wrote("iges", path)
	return nil
}

// compound returns every placed shape of the assembly as one compound
func (s *Session) compound() brep.Shape {
	return s.k.Compound(s.doc.Shapes(s.k))
}

// WriteBREP writes the assembly as a single compound in the kernel's
// native format
func (s *Session) WriteBREP(path string) error {
	if err := s.checkOutline(); err != nil {
		return err
	}
	defer s.metrics.Stage("write_brep")()

	shape := s.compound()
	err := fsutil.WriteDirect(path, func(w io.Writer) error {
		return s.k.WriteBREP(w, shape)
	})
	if err != nil {
		return fmt.Errorf("write BREP %s: %w", path, err)
	}
	s.wrote("brep", path)
	return nil
}

func (s *Session) wrote(format, path string) {
	s.metrics.File(format)
	size := int64(-1)
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	s.log.Info("model written", zap.String("format", format), zap.String("path", path), zap.Int64("bytes", size))
}
