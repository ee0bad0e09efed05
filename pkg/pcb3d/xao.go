package pcb3d

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// xaoTolerance is the distance under which a face touches a pad anchor
const xaoTolerance = 1e-4

type xaoDoc struct {
	XMLName  xml.Name    `xml:"XAO"`
	Version  string      `xml:"version,attr"`
	Author   string      `xml:"author,attr"`
	Geometry xaoGeometry `xml:"geometry"`
	Groups   xaoGroups   `xml:"groups"`
	Fields   xaoCount    `xml:"fields"`
}

type xaoGeometry struct {
	Name     string      `xml:"name,attr"`
	Shape    xaoShape    `xml:"shape"`
	Topology xaoTopology `xml:"topology"`
}

type xaoShape struct {
	Format string `xml:"format,attr"`
	Data   string `xml:",cdata"`
}

type xaoTopology struct {
	Vertices xaoElements `xml:"vertices"`
	Edges    xaoElements `xml:"edges"`
	Faces    xaoElements `xml:"faces"`
	Solids   xaoElements `xml:"solids"`
}

type xaoElements struct {
	Count int          `xml:"count,attr"`
	Items []xaoElement `xml:",any"`
}

type xaoElement struct {
	XMLName   xml.Name
	Index     int    `xml:"index,attr"`
	Name      string `xml:"name,attr"`
	Reference string `xml:"reference,attr"`
}

type xaoGroups struct {
	Count  int        `xml:"count,attr"`
	Groups []xaoGroup `xml:"group"`
}

type xaoGroup struct {
	Name      string     `xml:"name,attr"`
	Dimension string     `xml:"dimension,attr"`
	Count     int        `xml:"count,attr"`
	Elements  []xaoIndex `xml:"element"`
}

type xaoIndex struct {
	Index int `xml:"index,attr"`
}

type xaoCount struct {
	Count int `xml:"count,attr"`
}

func elements(tag string, n int) xaoElements {
	e := xaoElements{Count: n, Items: make([]xaoElement, n)}
	for i := range e.Items {
		e.Items[i] = xaoElement{XMLName: xml.Name{Local: tag}, Index: i, Reference: fmt.Sprint(i + 1)}
	}
	return e
}

// WriteXAO writes the assembly as one compound in the kernel format,
// wrapped in XAO XML with its topology counts and a face group per pad
// surface
func (s *Session) WriteXAO(path string) error {
	if err := s.checkOutline(); err != nil {
		return err
	}
	defer s.metrics.Stage("write_xao")()

	shape := s.compound()
	var brepBuf bytes.Buffer
	if err := s.k.WriteBREP(&brepBuf, shape); err != nil {
		return fmt.Errorf("write XAO %s: %w", path, err)
	}

	topo := s.k.Explore(shape)
	x := xaoDoc{
		Version: "1.0",
		Author:  version.Generator(),
		Geometry: xaoGeometry{
			Name:  s.pcbName,
			Shape: xaoShape{Format: "BREP", Data: brepBuf.String()},
			Topology: xaoTopology{
				Vertices: elements("vertex", len(topo.Vertices)),
				Edges:    elements("edge", len(topo.Edges)),
				Faces:    elements("face", len(topo.Faces)),
				Solids:   elements("solid", len(topo.Solids)),
			},
		},
	}
	x.Groups.Groups = s.padGroups(topo)
	x.Groups.Count = len(x.Groups.Groups)

	err := fsutil.WriteDirect(path, func(w io.Writer) error {
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err := enc.Encode(x); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("write XAO %s: %w", path, err)
	}
	s.wrote("xao", path)
	return nil
}

// padGroups finds, per recorded pad anchor, the planar faces lying in the
// pad surface plane whose centre falls on the pad
func (s *Session) padGroups(topo brep.Topology) []xaoGroup {
	names := make([]string, 0, len(s.padPoints))
	for n := range s.padPoints {
		names = append(names, n)
	}
	sort.Strings(names)

	type faceInfo struct {
		planar bool
		flat   bool
		z      float64
		center mgl64.Vec3
	}
	faces := make([]faceInfo, len(topo.Faces))
	for i, f := range topo.Faces {
		b := s.k.Bounds(f)
		faces[i] = faceInfo{
			planar: s.k.IsPlanar(f),
			flat:   !brep.IsVoid(b) && b.Max.Z-b.Min.Z <= xaoTolerance,
			z:      b.Min.Z,
			center: mgl64.Vec3{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2, b.Min.Z},
		}
	}

	var groups []xaoGroup
	for _, name := range names {
		tp := s.padPoints[name]
		g := xaoGroup{Name: name, Dimension: "face"}
		for i, f := range faces {
			if !f.planar || !f.flat || math.Abs(f.z-tp.Point.Z()) > xaoTolerance {
				continue
			}
			if s.k.Distance(tp.Shape, f.center) <= xaoTolerance {
				g.Elements = append(g.Elements, xaoIndex{Index: i})
			}
		}
		if len(g.Elements) == 0 {
			s.log.Debug("no face found for pad", zap.String("pad", name))
			continue
		}
		g.Count = len(g.Elements)
		groups = append(groups, g)
	}
	return groups
}
