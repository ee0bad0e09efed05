package brep

import (
	"io"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// BooleanOptions tune boolean operations
type BooleanOptions struct {
	// Fuzzy is the tolerance, in millimetres, under which coincident
	// geometry is merged. Zero uses the kernel default.
	Fuzzy float64
	// Parallel allows the kernel to spread work over several goroutines
	Parallel bool
	// Simplify merges coplanar faces of the result
	Simplify bool
}

// Mesh is a triangulated shape in millimetres
type Mesh struct {
	Positions []mgl64.Vec3
	Normals   []mgl64.Vec3
	Indices   []uint32
	// FaceStart holds, per source face, the index into Indices of its
	// first triangle corner
	FaceStart []int
}

// Triangles returns the number of triangles
func (m Mesh) Triangles() int {
	return len(m.Indices) / 3
}

// Topology lists the sub-shapes of a shape, each in a stable order
type Topology struct {
	Vertices []mgl64.Vec3
	// Edges are vertex index pairs
	Edges  [][2]int
	Faces  []Shape
	Solids []Shape
}

// Header carries the file-level metadata of STEP and IGES outputs
type Header struct {
	FileName     string
	Description  string
	Author       string
	Organization string
	System       string
	Timestamp    time.Time
}

// Kernel is the solid-modelling kernel driven by the exporter. All
// coordinates are millimetres with Z pointing up, away from the front
// side of the board.
type Kernel interface {
	// MakeFace builds the planar face bounded by outer, minus holes, at
	// height z
	MakeFace(outer Wire, holes []Wire, z float64) (Shape, error)
	// Extrude sweeps a face along Z by height; negative heights extrude
	// downwards
	Extrude(face Shape, height float64) (Shape, error)

	// Cut subtracts every tool from target
	Cut(target Shape, tools []Shape, opt BooleanOptions) (Shape, Report)
	// Fuse merges shapes into as few solids as possible
	Fuse(shapes []Shape, opt BooleanOptions) (Shape, Report)
	// Compound groups shapes without merging them
	Compound(shapes []Shape) Shape

	// Transform returns s moved by the affine matrix m
	Transform(s Shape, m mgl64.Mat4) Shape
	Bounds(s Shape) Box
	// Explore lists the vertices, edges, faces and solids of s
	Explore(s Shape) Topology
	// IsPlanar reports whether a face returned by Explore lies in a plane
	IsPlanar(face Shape) bool
	// Distance returns the minimum distance between s and p
	Distance(s Shape, p mgl64.Vec3) float64

	// Triangulate meshes s with the given linear (mm) and angular
	// (radians) deflections
	Triangulate(s Shape, linear, angular float64) (Mesh, error)

	// WriteBREP serialises s in the kernel's native text format
	WriteBREP(w io.Writer, s Shape) error
	WriteSTEP(w io.Writer, doc *Document, h Header) error
	WriteIGES(w io.Writer, doc *Document, h Header) error

	ReadSTEP(r io.Reader) (*Document, error)
	ReadIGES(r io.Reader) (*Document, error)
}
