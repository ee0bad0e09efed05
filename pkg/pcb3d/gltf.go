package pcb3d

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// defaultModelColor is used for shapes that carry no colour at all
var defaultModelColor = brep.Color{R: 0.6, G: 0.6, B: 0.6}

// WriteGLTF meshes every placed shape and writes a binary glTF through a
// temporary file renamed over path. Millimetres become metres and the
// board's Z-up frame becomes glTF's Y-up frame.
func (s *Session) WriteGLTF(path string) error {
	if err := s.checkOutline(); err != nil {
		return err
	}
	defer s.metrics.Stage("write_gltf")()

	doc, err := s.buildGLTF(path)
	if err != nil {
		return err
	}
	err = fsutil.WriteAtomic(path, "$tempfile$.glb", func(w io.Writer) error {
		enc := gltf.NewEncoder(w)
		enc.AsBinary = true
		return enc.Encode(doc)
	})
	if err != nil {
		return fmt.Errorf("write glTF %s: %w", path, err)
	}
	s.wrote("glb", path)
	return nil
}

func (s *Session) buildGLTF(path string) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Asset.Generator = version.Generator()
	doc.Asset.Extras = map[string]any{
		"pcb_name":        s.pcbName,
		"source_pcb_file": filepath.Base(s.sourceFile),
		"generator":       version.Generator(),
		"generated_at":    now().UTC().Format(time.RFC3339),
	}

	materials := map[brep.Color]int{}
	material := func(c brep.Color) int {
		if i, ok := materials[c]; ok {
			return i
		}
		i := len(doc.Materials)
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name: fmt.Sprintf("mat_%02x%02x%02x", byte(c.R*255), byte(c.G*255), byte(c.B*255)),
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float64{c.R, c.G, c.B, 1},
				MetallicFactor:  gltf.Float(0),
				RoughnessFactor: gltf.Float(0.5),
			},
			DoubleSided: true,
		})
		materials[c] = i
		return i
	}

	angular := GLTFAngularDeflection * math.Pi / 180
	for _, in := range s.doc.Instances() {
		shape := s.k.Transform(in.Label.Shape, in.Location)
		mesh, err := s.k.Triangulate(shape, GLTFLinearDeflection, angular)
		if err != nil {
			s.fail("mesh", in.Path, err)
			continue
		}
		if mesh.Triangles() == 0 {
			continue
		}

		positions := make([][3]float32, len(mesh.Positions))
		for i, p := range mesh.Positions {
			positions[i] = toGLTF(p)
		}
		normals := make([][3]float32, len(mesh.Normals))
		for i, n := range mesh.Normals {
			v := toGLTF(n)
			normals[i] = v
		}
		attrs := gltf.PrimitiveAttributes{gltf.POSITION: modeler.WritePosition(doc, positions)}
		if len(normals) == len(positions) {
			attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
		}

		m := &gltf.Mesh{Name: in.Path}
		for _, g := range groupByColor(mesh, in.Label) {
			m.Primitives = append(m.Primitives, &gltf.Primitive{
				Attributes: attrs,
				Indices:    gltf.Index(modeler.WriteIndices(doc, g.indices)),
				Material:   gltf.Index(material(g.color)),
				Mode:       gltf.PrimitiveTriangles,
			})
		}
		doc.Meshes = append(doc.Meshes, m)
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: in.Path, Mesh: gltf.Index(len(doc.Meshes) - 1)})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}

	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("write glTF %s: no shape could be meshed", path)
	}
	s.log.Debug("glTF built", zap.Int("meshes", len(doc.Meshes)), zap.Int("materials", len(doc.Materials)))
	return doc, nil
}

// toGLTF converts model millimetres, Z up, to glTF metres, Y up
func toGLTF(p mgl64.Vec3) [3]float32 {
	return [3]float32{float32(p.X() / 1000), float32(p.Z() / 1000), float32(-p.Y() / 1000)}
}

type colorGroup struct {
	color   brep.Color
	indices []uint32
}

// groupByColor splits the triangles of a mesh by the colour of the face
// they come from
func groupByColor(m brep.Mesh, l *brep.Label) []colorGroup {
	faceColor := func(f int) brep.Color {
		if c, ok := l.FaceColor(f); ok {
			return c
		}
		return defaultModelColor
	}

	groups := map[brep.Color]*colorGroup{}
	var order []brep.Color
	add := func(c brep.Color, idx []uint32) {
		g, ok := groups[c]
		if !ok {
			g = &colorGroup{color: c}
			groups[c] = g
			order = append(order, c)
		}
		g.indices = append(g.indices, idx...)
	}

	if len(m.FaceStart) == 0 {
		add(faceColor(0), m.Indices)
	}
	for f, start := range m.FaceStart {
		end := len(m.Indices)
		if f+1 < len(m.FaceStart) {
			end = m.FaceStart[f+1]
		}
		if end > start {
			add(faceColor(f), m.Indices[start:end])
		}
	}

	out := make([]colorGroup, 0, len(order))
	for _, c := range order {
		out = append(out, *groups[c])
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].indices) > len(out[j].indices) })
	return out
}
